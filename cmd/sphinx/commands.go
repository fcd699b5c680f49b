// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frekui/sphinx"
	"github.com/frekui/sphinx/internal/pkg/config"
	"github.com/frekui/sphinx/internal/pkg/util"
)

// withClient loads the master key, connects to the oracle and calls f.
func (a *app) withClient(f func(c *sphinx.Client, rw io.ReadWriter) error) error {
	mk, err := sphinx.LoadMasterKey(a.conf.Client.Datadir)
	if err != nil {
		return err
	}
	defer mk.Wipe()
	c := sphinx.NewClient(mk, sphinx.WithLogger(a.log.Zap()))

	conn, err := a.dial(&a.conf.Client)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", a.conf.Client.Addr(), err)
	}
	defer conn.Close()
	return f(c, conn)
}

func (a *app) initCmd() *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the master key",
		Long: `Create a random master key in the data directory.

With --restore the master key is recreated from the mnemonic printed by
backup, read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			datadir := a.conf.Client.Datadir
			if !restore {
				if err := sphinx.InitMasterKey(datadir); err != nil {
					return err
				}
				a.log.Info("created master key", "datadir", datadir)
				return nil
			}
			line, err := a.readLine()
			if err != nil {
				return err
			}
			defer util.Wipe(line)
			return sphinx.RestoreMasterKey(datadir, strings.TrimSpace(string(line)))
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "restore the master key from a mnemonic")
	return cmd
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Print the master key as a mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := sphinx.LoadMasterKey(a.conf.Client.Datadir)
			if err != nil {
				return err
			}
			defer mk.Wipe()
			words, err := mk.Mnemonic()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, words)
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <user> <site> <classes> [<size>]",
		Short: "Create a password for user at site",
		Long: `Create a password for user at site.

classes selects the characters of the password: any of u (upper case),
l (lower case), d (digits) and s (symbols). size truncates the password,
0 or no size means no truncation.

` + passwordHelp,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var size string
			if len(args) == 4 {
				size = args[3]
			}
			length, err := sphinx.ParseLength(size)
			if err != nil {
				return err
			}
			if _, err := sphinx.NewRule(args[2], length); err != nil {
				return err
			}
			pwd, err := a.readPassword()
			if err != nil {
				return err
			}
			defer util.Wipe(pwd)
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				out, err := c.Create(rw, pwd, args[0], args[1], args[2], length)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, out)
				return nil
			})
		},
	}
}

type opFunc func(c *sphinx.Client, rw io.ReadWriter, password []byte, user, host string) (string, error)

// opCmd builds get, change, commit and undo.
func (a *app) opCmd(name, short string, op opFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <user> <site>",
		Short: short,
		Long:  short + ".\n\n" + passwordHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := a.readPassword()
			if err != nil {
				return err
			}
			defer util.Wipe(pwd)
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				out, err := op(c, rw, pwd, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, out)
				return nil
			})
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user> <site>",
		Short: "Delete the password of user at site",
		Long:  "Delete the password of user at site.\n\n" + passwordHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := a.readPassword()
			if err != nil {
				return err
			}
			defer util.Wipe(pwd)
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				return c.Delete(rw, pwd, args[0], args[1])
			})
		},
	}
}

// userSite splits [<user>] <site>.
func userSite(args []string) (user, site string) {
	if len(args) == 2 {
		return args[0], args[1]
	}
	return "", args[0]
}

func (a *app) writeCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "write [<user>] <site>",
		Short: "Store an encrypted blob for user at site",
		Long: `Store an encrypted blob for user at site.

The blob is read from the file given with --in, "-" for stdin. Reading
the blob from stdin needs the password to come from the terminal.

` + passwordHelp,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, site := userSite(args)
			if in == "-" && a.tty == nil {
				return errors.New("write: stdin holds the password, give the blob with --in <file>")
			}
			pwd, err := a.readPassword()
			if err != nil {
				return err
			}
			defer util.Wipe(pwd)
			var payload []byte
			if in == "-" {
				payload, err = io.ReadAll(a.stdin)
			} else {
				payload, err = os.ReadFile(in)
			}
			if err != nil {
				return err
			}
			defer util.Wipe(payload)
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				return c.Write(rw, pwd, payload, user, site)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "-", "file to read the blob from, - for stdin")
	return cmd
}

func (a *app) readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [<user>] <site>",
		Short: "Print the blob stored for user at site",
		Long:  "Print the blob stored for user at site.\n\n" + passwordHelp,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, site := userSite(args)
			pwd, err := a.readPassword()
			if err != nil {
				return err
			}
			defer util.Wipe(pwd)
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				blob, err := c.Read(rw, pwd, user, site)
				if err != nil {
					return err
				}
				defer util.Wipe(blob)
				fmt.Fprintln(a.stdout, string(blob))
				return nil
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <site>",
		Short: "List the users with a password at site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(c *sphinx.Client, rw io.ReadWriter) error {
				users, err := c.ListUsers(rw, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, users)
				return nil
			})
		},
	}
}

func (a *app) idCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id <user> <site>",
		Short: "Print the record id the oracle knows user at site by",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := sphinx.LoadMasterKey(a.conf.Client.Datadir)
			if err != nil {
				return err
			}
			defer mk.Wipe()
			id := sphinx.NewKeyRing(mk).Identity(args[1], args[0])
			fmt.Fprintln(a.stdout, sphinx.IDString(id))
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(format).Encode(a.stdout, a.conf)
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "output format, toml or yaml")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sphinx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, "sphinx v"+version)
			return nil
		},
	}
}
