// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

// This file contains the key derivation hierarchy. Everything a client knows
// about a site is derived from the master key, the host and user names, and
// rwd, the hardened password returned by the OPRF. No per-site secret is
// stored locally.

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/frekui/sphinx/internal/pkg/util"
)

// MasterKeySize is the size of the master key in bytes.
const MasterKeySize = 32

// IDSize is the size of a record identity in bytes.
const IDSize = 32

// MasterKey is the local 32 byte secret every other key is derived from. It
// never leaves the client.
type MasterKey struct {
	b []byte
}

// NewMasterKey returns a MasterKey holding a copy of b.
func NewMasterKey(b []byte) (*MasterKey, error) {
	if len(b) != MasterKeySize {
		return nil, configurationError("masterkey", "master key has %d bytes, expected %d", len(b), MasterKeySize)
	}
	return &MasterKey{b: append([]byte(nil), b...)}, nil
}

// Wipe zeroes the key. The MasterKey must not be used afterwards.
func (mk *MasterKey) Wipe() {
	util.Wipe(mk.b)
}

// KeyRing derives identities and key pairs from a master key. All methods
// are pure functions of their arguments and the master key.
type KeyRing struct {
	mk *MasterKey
}

// NewKeyRing returns a KeyRing using mk. The caller keeps ownership of mk.
func NewKeyRing(mk *MasterKey) *KeyRing {
	return &KeyRing{mk: mk}
}

// Identity returns the 32 byte record id for user at host. It is sent in the
// clear and is stable for as long as the master key is.
//
//	salt = H(mk, "sphinx host salt")
//	id   = H(salt, user || "|" || host)
func (k *KeyRing) Identity(host, user string) []byte {
	salt := hash(k.mk.b, hashSize, []byte(saltCtx))
	defer util.Wipe(salt)
	return hash(salt, IDSize, []byte(user), []byte("|"), []byte(host))
}

// SigningKey returns the Ed25519 key authenticating the holder of rwd for id
// to the oracle. The caller must wipe the returned key.
//
//	seed = H(rwd, H(id, H(mk, "sphinx signing key")))
func (k *KeyRing) SigningKey(id, rwd []byte) ed25519.PrivateKey {
	s1 := hash(k.mk.b, hashSize, []byte(signCtx))
	defer util.Wipe(s1)
	s2 := hash(id, hashSize, s1)
	defer util.Wipe(s2)
	seed := hash(rwd, ed25519.SeedSize, s2)
	defer util.Wipe(seed)
	return ed25519.NewKeyFromSeed(seed)
}

// SealingKey returns the X25519 key pair blobs are sealed to. Unlike
// SigningKey it does not depend on the record id, which lets every record
// with an empty rwd (the user registries) share one key. It also means two
// records with the same rwd would share a sealing key. The caller must wipe
// sk.
//
//	sk = H(rwd, H(mk, "sphinx encryption key"))
//	pk = sk * B
func (k *KeyRing) SealingKey(rwd []byte) (sk, pk *[32]byte, err error) {
	s1 := hash(k.mk.b, hashSize, []byte(encCtx))
	defer util.Wipe(s1)
	s2 := hash(rwd, 32, s1)
	defer util.Wipe(s2)
	pub, err := curve25519.X25519(s2, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	sk, pk = new([32]byte), new([32]byte)
	copy(sk[:], s2)
	copy(pk[:], pub)
	return sk, pk, nil
}

// PasswordKey returns the key a site password is rendered from.
func PasswordKey(rwd []byte) []byte {
	return hash(rwd, hashSize, []byte(passCtx))
}
