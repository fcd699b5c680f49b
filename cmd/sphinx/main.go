// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Command sphinx is a client for a sphinx oracle. It derives strong site
// passwords from one local master key and a password known to the user.
//
// Usage:
//
//	sphinx init [--restore]
//	sphinx backup
//	sphinx create <user> <site> <classes> [<size>]
//	sphinx <get|change|commit|undo|delete> <user> <site>
//	sphinx write [--in <file>] [<user>] <site>
//	sphinx read [<user>] <site>
//	sphinx list <site>
//	sphinx id <user> <site>
//	sphinx config [--format yaml]
//
// The password is read from the terminal, or from the first line of stdin
// when stdin is not a terminal. Results are printed on stdout; a failed
// command prints "fail" and exits with status 1.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/frekui/sphinx"
	"github.com/frekui/sphinx/internal/pkg/config"
	"github.com/frekui/sphinx/internal/pkg/logger"
)

const version = "0.1.0"

type app struct {
	configPath string
	verbose    bool

	conf *config.Config
	log  *logger.Logger

	stdin  *bufio.Reader
	tty    *os.File
	stdout io.Writer
	stderr io.Writer
	dial   func(c *config.Client) (io.ReadWriteCloser, error)
}

func newApp() *app {
	a := &app{
		stdin:  bufio.NewReader(os.Stdin),
		stdout: os.Stdout,
		stderr: os.Stderr,
		log:    logger.Nop(),
		dial:   dialTLS,
	}
	if isTerminal(os.Stdin) {
		a.tty = os.Stdin
	}
	return a
}

func main() {
	os.Exit(newApp().run(os.Args[1:]))
}

// run executes the command line args and returns the exit status.
func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	err := root.Execute()
	defer a.log.Sync()
	if err != nil {
		fmt.Fprintln(a.stdout, "fail")
		if a.conf == nil {
			// No logger yet.
			fmt.Fprintln(a.stderr, err)
		}
		a.log.Error("command failed", "error", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sphinx",
		Short:         "Password hardening client for a sphinx oracle",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default: search sphinx.toml, ~/.sphinxrc, ~/.config/sphinx/config, /etc/sphinx/config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")
	root.AddCommand(
		a.initCmd(),
		a.backupCmd(),
		a.createCmd(),
		a.opCmd("get", "Print the password for user at site", (*sphinx.Client).Get),
		a.opCmd("change", "Prepare a new password for user at site and print it", (*sphinx.Client).Change),
		a.opCmd("commit", "Make the prepared password the current one and print it", (*sphinx.Client).Commit),
		a.opCmd("undo", "Go back to the previous password and print it", (*sphinx.Client).Undo),
		a.deleteCmd(),
		a.writeCmd(),
		a.readCmd(),
		a.listCmd(),
		a.idCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup() error {
	conf, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		conf.Client.Verbose = true
		conf.Logger.Environment = "development"
	}
	log, err := logger.New(&conf.Logger)
	if err != nil {
		return err
	}
	a.conf, a.log = conf, log
	if conf.Path != "" {
		log.Debug("loaded configuration", "path", conf.Path)
	}
	return nil
}
