// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinxtest

import (
	"io"
	"sync"
)

// queue is one direction of a pipe. Writes never block. A read returns data
// from at most one write, so message boundaries survive like they do on a
// lightly loaded TCP stream.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	msgs   [][]byte
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) read(b []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.msgs) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.msgs) == 0 {
		return 0, io.EOF
	}
	n := copy(b, q.msgs[0])
	q.msgs[0] = q.msgs[0][n:]
	if len(q.msgs[0]) == 0 {
		q.msgs = q.msgs[1:]
	}
	return n, nil
}

func (q *queue) write(b []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, io.ErrClosedPipe
	}
	if len(b) > 0 {
		q.msgs = append(q.msgs, append([]byte(nil), b...))
		q.cond.Broadcast()
	}
	return len(b), nil
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

type pipeEnd struct {
	in, out *queue
}

func (p *pipeEnd) Read(b []byte) (int, error)  { return p.in.read(b) }
func (p *pipeEnd) Write(b []byte) (int, error) { return p.out.write(b) }

// Close lets the peer drain what was already written, then read io.EOF.
func (p *pipeEnd) Close() error {
	p.in.close()
	p.out.close()
	return nil
}

// pipe returns the two ends of an in-memory stream.
func pipe() (*pipeEnd, *pipeEnd) {
	a, b := newQueue(), newQueue()
	return &pipeEnd{in: a, out: b}, &pipeEnd{in: b, out: a}
}
