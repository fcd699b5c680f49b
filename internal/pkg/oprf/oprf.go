// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Package oprf contains the oblivious pseudorandom function used to harden
// passwords. It is a thin layer over the ristretto255 OPRF of RFC 9497 as
// implemented by circl.
//
// The protocol has three steps:
//
//	client: (blind, alpha) = Challenge(pwd)          alpha is sent to the oracle
//	oracle: beta = Evaluate(k, alpha)                beta is sent back
//	client: rwd = Finish(pwd, blind, beta, id)
//
// rwd depends on the password, the oracle's key k and the record id, but the
// oracle learns nothing about the password.
package oprf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/oprf"
	"golang.org/x/crypto/blake2b"
)

// ElementSize is the size of a serialized group element (alpha and beta).
const ElementSize = 32

// OutputSize is the size of the hardened secret returned by Finish.
const OutputSize = 32

var suite = oprf.SuiteRistretto255

// blind is the client state between Challenge and Finish.
type blind struct {
	fin *oprf.FinalizeData
}

// Client runs the client side of the OPRF. The zero value is not usable, use
// NewClient.
type Client struct {
	c oprf.Client
}

// NewClient returns a client for the ristretto255 suite.
func NewClient() *Client {
	return &Client{c: oprf.NewClient(suite)}
}

// Challenge blinds password. The returned blinding state must be passed to
// Finish together with the oracle's answer to alpha.
func (c *Client) Challenge(password []byte) (any, []byte, error) {
	fin, req, err := c.c.Blind([][]byte{password})
	if err != nil {
		return nil, nil, err
	}
	alpha, err := req.Elements[0].MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	if len(alpha) != ElementSize {
		return nil, nil, fmt.Errorf("unexpected element size %d", len(alpha))
	}
	return &blind{fin: fin}, alpha, nil
}

// Finish unblinds beta and binds the result to id. The password argument is
// part of the state captured by Challenge and is accepted for symmetry with
// other implementations.
func (c *Client) Finish(password []byte, state any, beta, id []byte) ([]byte, error) {
	b, ok := state.(*blind)
	if !ok || b == nil || b.fin == nil {
		return nil, errors.New("invalid blinding state")
	}
	if len(beta) != ElementSize {
		return nil, fmt.Errorf("beta has length %d, expected %d", len(beta), ElementSize)
	}
	e := group.Ristretto255.NewElement()
	if err := e.UnmarshalBinary(beta); err != nil {
		return nil, fmt.Errorf("beta is not a group element: %w", err)
	}
	if e.IsIdentity() {
		return nil, errors.New("beta is the identity element")
	}
	outputs, err := c.c.Finalize(b.fin, &oprf.Evaluation{Elements: []oprf.Evaluated{e}})
	if err != nil {
		return nil, err
	}
	return bind(outputs[0], id)
}

// bind hashes the OPRF output with id as the key and wipes the output.
func bind(out, id []byte) ([]byte, error) {
	defer func() {
		for i := range out {
			out[i] = 0
		}
	}()
	h, err := blake2b.New(OutputSize, id)
	if err != nil {
		return nil, err
	}
	h.Write(out)
	return h.Sum(nil), nil
}

// Key is an oracle side OPRF key. The client never holds one; it exists for
// test oracles and tools.
type Key struct {
	s oprf.Server
}

// GenerateKey returns a fresh random key.
func GenerateKey() (*Key, error) {
	sk, err := oprf.GenerateKey(suite, rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Key{s: oprf.NewServer(suite, sk)}, nil
}

// Evaluate computes beta = alpha^k.
func (k *Key) Evaluate(alpha []byte) ([]byte, error) {
	if len(alpha) != ElementSize {
		return nil, fmt.Errorf("alpha has length %d, expected %d", len(alpha), ElementSize)
	}
	e := group.Ristretto255.NewElement()
	if err := e.UnmarshalBinary(alpha); err != nil {
		return nil, fmt.Errorf("alpha is not a group element: %w", err)
	}
	ev, err := k.s.Evaluate(&oprf.EvaluationRequest{Elements: []oprf.Blinded{e}})
	if err != nil {
		return nil, err
	}
	return ev.Elements[0].MarshalBinary()
}
