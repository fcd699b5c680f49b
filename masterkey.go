// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tyler-smith/go-bip39"

	"github.com/frekui/sphinx/internal/pkg/util"
)

// MasterKeyFile is the name of the master key file inside the data directory.
const MasterKeyFile = "masterkey"

// InitMasterKey creates datadir (mode 0700) if needed and writes a fresh
// random master key to it (mode 0600). It refuses to overwrite an existing
// key: losing it loses every password derived from it.
func InitMasterKey(datadir string) error {
	mk := make([]byte, MasterKeySize)
	defer util.Wipe(mk)
	if _, err := io.ReadFull(randr, mk); err != nil {
		return configurationError("init", "generating master key: %w", err)
	}
	return writeMasterKey(datadir, mk)
}

// RestoreMasterKey recreates the master key file in datadir from a mnemonic
// produced by MasterKey.Mnemonic.
func RestoreMasterKey(datadir, mnemonic string) error {
	mk, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return validationError("restore", "invalid mnemonic: %w", err)
	}
	defer util.Wipe(mk)
	if len(mk) != MasterKeySize {
		return validationError("restore", "mnemonic encodes %d bytes, expected %d", len(mk), MasterKeySize)
	}
	return writeMasterKey(datadir, mk)
}

func writeMasterKey(datadir string, mk []byte) error {
	if err := os.MkdirAll(datadir, 0o700); err != nil {
		return configurationError("init", "creating data directory: %w", err)
	}
	path := filepath.Join(datadir, MasterKeyFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return configurationError("init", "already initialized: %s exists", path)
		}
		return configurationError("init", "%w", err)
	}
	defer f.Close()
	if _, err := f.Write(mk); err != nil {
		return configurationError("init", "writing master key: %w", err)
	}
	if err := f.Close(); err != nil {
		return configurationError("init", "writing master key: %w", err)
	}
	return nil
}

// LoadMasterKey reads the master key from datadir. A missing key is a
// configuration error: either sphinx was never initialized, or every
// password it produced is lost.
func LoadMasterKey(datadir string) (*MasterKey, error) {
	path := filepath.Join(datadir, MasterKeyFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configurationError("load", "could not find master key %s; on a fresh install run `sphinx init`", path)
		}
		return nil, configurationError("load", "%w", err)
	}
	defer util.Wipe(b)
	mk, err := NewMasterKey(b)
	if err != nil {
		return nil, configurationError("load", "%s is corrupt: %w", path, err)
	}
	return mk, nil
}

// Mnemonic returns the master key as a 24 word BIP-39 mnemonic, suitable for
// an offline backup.
func (mk *MasterKey) Mnemonic() (string, error) {
	return bip39.NewMnemonic(mk.b)
}
