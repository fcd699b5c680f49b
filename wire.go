// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

// This file contains the framing of the wire protocol. Every message has a
// fixed size known from context; there are no length prefixes. The oracle
// signals conditions with short ASCII sentinels which are decoded into a
// tagged response here, at the boundary, so that the operations never compare
// raw bytes.

import (
	"bytes"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/frekui/sphinx/internal/pkg/oprf"
	"github.com/frekui/sphinx/internal/pkg/util"
)

// Opcode is the first byte of every request.
type Opcode byte

// Opcodes of the wire protocol.
const (
	OpCreate Opcode = 0x00
	OpRead   Opcode = 0x33
	OpUndo   Opcode = 0x55
	OpGet    Opcode = 0x66
	OpCommit Opcode = 0x99
	OpChange Opcode = 0xaa
	OpWrite  Opcode = 0xcc
	OpDelete Opcode = 0xff
)

func (o Opcode) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUndo:
		return "undo"
	case OpGet:
		return "get"
	case OpCommit:
		return "commit"
	case OpChange:
		return "change"
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Sizes of fixed-width fields.
const (
	ElementSize = oprf.ElementSize
	RwdSize     = oprf.OutputSize
	NonceSize   = 32
	AckSize     = 2
	StatusSize  = 3
	// MaxRegistrySize bounds a user registry blob.
	MaxRegistrySize = 8192
	// MaxBlobSize bounds a payload blob returned by read.
	MaxBlobSize = 8192 + SealOverhead
)

// Sentinels sent by the oracle.
var (
	SentinelFail = []byte("fail")
	SentinelNone = []byte("none")
	SentinelNew  = []byte("new")
	SentinelOK   = []byte("ok")
)

type respKind int

const (
	respData respKind = iota
	// The oracle failed the OPRF step or the request.
	respFail
	// No blob exists yet.
	respNone
	// First write to this id.
	respNew
	// Update accepted.
	respOK
)

func (k respKind) String() string {
	switch k {
	case respFail:
		return "fail"
	case respNone:
		return "none"
	case respNew:
		return "new"
	case respOK:
		return "ok"
	}
	return "data"
}

type response struct {
	kind respKind
	data []byte
}

func classify(b []byte) respKind {
	switch {
	case bytes.Equal(b, SentinelFail):
		return respFail
	case bytes.Equal(b, SentinelNone):
		return respNone
	case bytes.Equal(b, SentinelNew):
		return respNew
	case bytes.Equal(b, SentinelOK):
		return respOK
	}
	return respData
}

// channel is one run of one operation over a stream.
type channel struct {
	rw  io.ReadWriter
	op  Opcode
	log *zap.Logger
}

func (c *channel) fail(format string, args ...any) *Error {
	return protocolError(c.op.String(), format, args...)
}

// send writes the concatenation of parts as one message.
func (c *channel) send(parts ...[]byte) error {
	msg := bytes.Join(parts, nil)
	defer util.Wipe(msg)
	c.log.Debug("send", zap.Int("bytes", len(msg)))
	if err := util.Send(c.rw, msg); err != nil {
		return c.fail("send: %w", err)
	}
	return nil
}

// recv reads a message of exactly n bytes, or a shorter sentinel after which
// the oracle closed the stream. A sentinel is only recognized once the stream
// ends: an oracle that answers "fail" and keeps the connection open leaves
// recv waiting for the rest of the n bytes.
func (c *channel) recv(n int) (response, error) {
	b, err := util.Recv(c.rw, n)
	if err != nil {
		if errors.Is(err, util.ErrShortRead) {
			if k := classify(b); k != respData {
				c.log.Debug("recv sentinel", zap.Stringer("sentinel", k))
				return response{kind: k}, nil
			}
		}
		return response{}, c.fail("recv: %w", err)
	}
	k := classify(b)
	c.log.Debug("recv", zap.Int("bytes", len(b)), zap.Stringer("kind", k))
	return response{kind: k, data: b}, nil
}

// recvMax reads one variable sized message of at most max bytes.
func (c *channel) recvMax(max int) (response, error) {
	b, err := util.RecvMax(c.rw, max)
	if err != nil {
		return response{}, c.fail("recv: %w", err)
	}
	k := classify(b)
	c.log.Debug("recv", zap.Int("bytes", len(b)), zap.Stringer("kind", k))
	return response{kind: k, data: b}, nil
}

// recvData reads exactly n bytes of payload; any sentinel is a failure.
func (c *channel) recvData(n int, what string) ([]byte, error) {
	resp, err := c.recv(n)
	if err != nil {
		return nil, err
	}
	if resp.kind != respData || len(resp.data) != n {
		return nil, c.fail("expected %s, oracle answered %q", what, resp.kind)
	}
	return resp.data, nil
}

// recvAck reads the two byte acknowledgment of an update.
func (c *channel) recvAck() error {
	resp, err := c.recv(AckSize)
	if err != nil {
		return err
	}
	if resp.kind != respOK {
		return c.fail("oracle rejected the update")
	}
	return nil
}
