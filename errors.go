// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import "fmt"

// Kind classifies an Error.
type Kind uint8

const (
	// KindConfiguration is a broken local setup: missing master key, bad
	// data directory. Fatal for the process.
	KindConfiguration Kind = iota + 1
	// KindProtocol is a short or malformed read, an unexpected sentinel or
	// a failure reported by the oracle. Never retried automatically.
	KindProtocol
	// KindValidation is bad caller input detected before any network I/O.
	KindValidation
	// KindCrypto is a failure to open a sealed blob; treated as tampering.
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindProtocol:
		return "protocol error"
	case KindValidation:
		return "validation error"
	case KindCrypto:
		return "crypto error"
	}
	return "unknown error"
}

// Error is the error type returned by all operations of this package.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "create" or "open".
	Op  string
	Err error
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrCrypto        = &Error{Kind: KindCrypto}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "sphinx: " + e.Kind.String()
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func protocolError(op string, format string, args ...any) *Error {
	return newError(KindProtocol, op, format, args...)
}

func validationError(op string, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

func configurationError(op string, format string, args ...any) *Error {
	return newError(KindConfiguration, op, format, args...)
}

func cryptoError(op string, format string, args ...any) *Error {
	return newError(KindCrypto, op, format, args...)
}
