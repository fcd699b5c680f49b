// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// passwordHelp ends the long help of every command that reads a password.
const passwordHelp = `The password is read from the terminal. If stdin is not a terminal, the
password is the first line of stdin without its line ending. Clients that
hash all of stdin keep the newline, so "echo pw | sphinx get" gives a
different password than they do for the same record.`

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// readPassword prompts for the password on the terminal, or reads the first
// line of stdin if stdin is not a terminal.
func (a *app) readPassword() ([]byte, error) {
	if a.tty != nil {
		fmt.Fprint(a.stderr, "password: ")
		pwd, err := term.ReadPassword(int(a.tty.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return pwd, nil
	}
	pwd, err := a.readLine()
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pwd, nil
}

// readLine reads one line from stdin without its line ending.
func (a *app) readLine() ([]byte, error) {
	line, err := a.stdin.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}
