// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Package util contains the low level helpers shared by the sphinx client and
// the test oracle: secret erasure and fixed-width reads and writes on a byte
// stream.
package util

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is returned by Recv when the peer sent fewer bytes than
// expected before the stream ended.
var ErrShortRead = errors.New("short read")

// Wipe overwrites every given buffer with zeros. It is best effort: the Go
// runtime may have copied the data elsewhere (e.g., when growing a slice).
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
	}
}

// Send writes all of data to w in a single Write call. Writers in this
// module are unbuffered streams, so one call is one message on the wire.
func Send(w io.Writer, data []byte) error {
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}

// Recv reads exactly n bytes from r. If the stream ends early the bytes that
// did arrive are returned together with an error wrapping ErrShortRead, so
// that the caller can recognize a short sentinel such as "fail" sent by a
// peer that then hung up.
func Recv(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err == nil {
		return buf, nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return buf[:got], fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, got, n)
	}
	return buf[:got], err
}

// RecvMax performs a single read of at most max bytes. It is used for the
// variable sized blobs of the protocol which are not length prefixed; the
// peer sends each of them in one write. An empty read is reported as
// ErrShortRead.
func RecvMax(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := r.Read(buf)
	if n > 0 {
		// A reader may return data together with io.EOF.
		return buf[:n], nil
	}
	if err == nil || err == io.EOF {
		return nil, fmt.Errorf("%w: got 0 of at most %d bytes", ErrShortRead, max)
	}
	return nil, err
}
