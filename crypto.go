// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"crypto/rand"

	"golang.org/x/crypto/blake2b"
)

var randr = rand.Reader

// Contexts for the key derivation hierarchy.
const (
	saltCtx = "sphinx host salt"
	signCtx = "sphinx signing key"
	encCtx  = "sphinx encryption key"
	passCtx = "sphinx password context"
)

// hashSize is the default output size of hash.
const hashSize = 32

// hash is the keyed hash H from the key derivation hierarchy: BLAKE2b with
// key as the BLAKE2b key (unkeyed if key is empty) over data, with size bytes
// of output. This is libsodium's crypto_generichash(data, key).
//
// key must be at most 64 bytes and size in [1, 64]; all callers in this
// package pass constants or 32-byte secrets.
func hash(key []byte, size int, data ...[]byte) []byte {
	h, err := blake2b.New(size, key)
	if err != nil {
		panic("blake2b.New failed: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
