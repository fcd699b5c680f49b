// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

// Blobs are opaque byte strings stored by the oracle on behalf of the client:
// sealed rules, sealed user registries and sealed free-form payloads. They are
// sealed to a key derived from rwd, so the oracle cannot read them, and
// writes are signed with a key derived from (id, rwd), so the oracle can
// check that the writer knows the password without learning it.

import (
	"crypto/ed25519"

	"golang.org/x/crypto/nacl/box"

	"github.com/frekui/sphinx/internal/pkg/util"
)

// SealOverhead is the number of bytes sealing adds to a plaintext.
const SealOverhead = box.AnonymousOverhead

// SignatureSize is the size of the signature appended by signAttached.
const SignatureSize = ed25519.SignatureSize

// seal encrypts plaintext anonymously to the sealing key of rwd.
func (k *KeyRing) seal(plaintext, rwd []byte) ([]byte, error) {
	sk, pk, err := k.SealingKey(rwd)
	if err != nil {
		return nil, cryptoError("seal", "%w", err)
	}
	util.Wipe(sk[:])
	ct, err := box.SealAnonymous(nil, plaintext, pk, randr)
	if err != nil {
		return nil, cryptoError("seal", "%w", err)
	}
	return ct, nil
}

// open decrypts a blob sealed by seal with the same rwd. Any mismatch between
// the ciphertext and the key is reported as a crypto error.
func (k *KeyRing) open(ciphertext, rwd []byte) ([]byte, error) {
	sk, pk, err := k.SealingKey(rwd)
	if err != nil {
		return nil, cryptoError("open", "%w", err)
	}
	defer util.Wipe(sk[:])
	pt, ok := box.OpenAnonymous(nil, ciphertext, pk, sk)
	if !ok {
		return nil, cryptoError("open", "cannot open sealed blob of %d bytes", len(ciphertext))
	}
	return pt, nil
}

// signAttached returns payload || Sign(sk, payload) where sk is the signing
// key of (id, rwd).
func (k *KeyRing) signAttached(payload, id, rwd []byte) []byte {
	sk := k.SigningKey(id, rwd)
	defer util.Wipe(sk)
	sig := ed25519.Sign(sk, payload)
	out := make([]byte, 0, len(payload)+len(sig))
	out = append(out, payload...)
	return append(out, sig...)
}

// publicKey returns the public half of the signing key of (id, rwd).
func (k *KeyRing) publicKey(id, rwd []byte) ed25519.PublicKey {
	sk := k.SigningKey(id, rwd)
	defer util.Wipe(sk)
	return append(ed25519.PublicKey(nil), sk.Public().(ed25519.PublicKey)...)
}

// VerifySigned checks a blob produced by signing with the key matching pub
// and returns the payload without the signature. This is the check the oracle
// performs before accepting a write.
func VerifySigned(pub ed25519.PublicKey, signed []byte) ([]byte, bool) {
	if len(pub) != ed25519.PublicKeySize || len(signed) < SignatureSize {
		return nil, false
	}
	payload := signed[:len(signed)-SignatureSize]
	sig := signed[len(signed)-SignatureSize:]
	if !ed25519.Verify(pub, payload, sig) {
		return nil, false
	}
	return payload, true
}
