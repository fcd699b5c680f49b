// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinxtest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/frekui/sphinx"
)

// StubOPRF is a deterministic stand-in for the client OPRF. It hides
// nothing: alpha is a plain hash of the password. It lets tests produce
// the same passwords on every run.
type StubOPRF struct{}

var _ sphinx.OPRF = StubOPRF{}

func sum(key []byte, data ...[]byte) []byte {
	h, err := blake2b.New256(key)
	if err != nil {
		panic(err)
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Challenge returns alpha = H(password). The state is a copy of password.
func (StubOPRF) Challenge(password []byte) (any, []byte, error) {
	return append([]byte(nil), password...), sum(nil, password), nil
}

// Finish returns H(id, beta || password).
func (StubOPRF) Finish(password []byte, state any, beta, id []byte) ([]byte, error) {
	if _, ok := state.([]byte); !ok {
		return nil, errors.New("invalid state")
	}
	if len(beta) != sphinx.ElementSize {
		return nil, fmt.Errorf("beta has %d bytes", len(beta))
	}
	return sum(id, beta, password), nil
}

type stubKey []byte

// Evaluate returns H(k, alpha).
func (k stubKey) Evaluate(alpha []byte) ([]byte, error) {
	if len(alpha) != sphinx.ElementSize {
		return nil, fmt.Errorf("alpha has %d bytes", len(alpha))
	}
	return sum(k, alpha), nil
}

// StubKeys returns keys for StubOPRF. The n-th key is H(seed, n), so two
// oracles with the same seed hand out the same keys in the same order.
func StubKeys(seed []byte) KeyGen {
	var n uint64
	return func() (Evaluator, error) {
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], n)
		n++
		return stubKey(sum(seed, ctr[:])), nil
	}
}
