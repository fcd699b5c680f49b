// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Package sphinxtest contains an in-memory sphinx oracle for tests. It keeps
// records in a map, evaluates the OPRF, verifies the signatures on every
// write and models the epochs of change, commit and undo. It is not a server
// anyone should deploy.
package sphinxtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/frekui/sphinx"
	"github.com/frekui/sphinx/internal/pkg/oprf"
	"github.com/frekui/sphinx/internal/pkg/util"
)

// StatusExists is the write status the oracle sends for a known id.
var StatusExists = []byte("old")

// Evaluator is the oracle side of an OPRF key.
type Evaluator interface {
	Evaluate(alpha []byte) ([]byte, error)
}

// KeyGen returns a fresh OPRF key for a new record or epoch.
type KeyGen func() (Evaluator, error)

// CirclKeys returns random ristretto255 keys matching the default client OPRF.
func CirclKeys() KeyGen {
	return func() (Evaluator, error) {
		return oprf.GenerateKey()
	}
}

type epoch struct {
	key  Evaluator
	pk   ed25519.PublicKey
	blob []byte
}

type record struct {
	cur epoch
	// pending is the key of an uncommitted change.
	pending *epoch
	// prev is the epoch before the last commit.
	prev *epoch
}

// Server is the oracle. Connections are served one at a time.
type Server struct {
	mu      sync.Mutex
	newKey  KeyGen
	records map[string]*record
	// Registries have no OPRF key.
	registries map[string]*epoch

	Log *zap.Logger
}

// NewServer returns an empty oracle drawing OPRF keys from gen.
func NewServer(gen KeyGen) *Server {
	return &Server{
		newKey:     gen,
		records:    map[string]*record{},
		registries: map[string]*epoch{},
		Log:        zap.NewNop(),
	}
}

// ServeConn runs one request on conn and closes it.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	defer conn.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.handle(conn); err != nil {
		s.Log.Debug("request failed", zap.Error(err))
	}
}

// Do runs f against the oracle over an in-memory pipe and returns f's error.
// The oracle has finished with the request when Do returns.
func (s *Server) Do(f func(rw io.ReadWriter) error) error {
	c, o := pipe()
	done := make(chan struct{})
	go func() {
		s.ServeConn(o)
		close(done)
	}()
	err := f(c)
	c.Close()
	<-done
	return err
}

// Conn returns the client end of a new connection to the oracle. The
// request is served in the background; closing the connection ends it.
func (s *Server) Conn() io.ReadWriteCloser {
	c, o := pipe()
	go s.ServeConn(o)
	return c
}

// HasRecord reports whether the oracle holds a record for id.
func (s *Server) HasRecord(id []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[string(id)]
	return ok
}

// HasPending reports whether the record for id has an uncommitted change.
func (s *Server) HasPending(id []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[string(id)]
	return ok && rec.pending != nil
}

// HasRegistry reports whether the oracle holds a user registry under id.
func (s *Server) HasRegistry(id []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registries[string(id)]
	return ok
}

// Blob returns the sealed blob of the current epoch of id.
func (s *Server) Blob(id []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[string(id)]; ok {
		return append([]byte(nil), rec.cur.blob...)
	}
	if reg, ok := s.registries[string(id)]; ok {
		return append([]byte(nil), reg.blob...)
	}
	return nil
}

func fail(w io.Writer, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if werr := util.Send(w, sphinx.SentinelFail); werr != nil {
		return fmt.Errorf("%v (sending fail: %v)", err, werr)
	}
	return err
}

func (s *Server) handle(rw io.ReadWriter) error {
	req, err := util.RecvMax(rw, 1+sphinx.IDSize+sphinx.ElementSize)
	if err != nil {
		return err
	}
	if len(req) < 1+sphinx.IDSize {
		return fmt.Errorf("request too short: %d bytes", len(req))
	}
	op := sphinx.Opcode(req[0])
	id := string(req[1 : 1+sphinx.IDSize])
	alpha := req[1+sphinx.IDSize:]
	log := s.Log.With(zap.Stringer("op", op), zap.String("id", sphinx.IDString([]byte(id))))
	log.Debug("request")

	if len(alpha) == 0 && op == sphinx.OpRead {
		return s.readRegistry(rw, id)
	}
	if len(alpha) != sphinx.ElementSize {
		return fail(rw, "alpha has %d bytes", len(alpha))
	}

	switch op {
	case sphinx.OpCreate:
		return s.create(rw, id, alpha)
	case sphinx.OpWrite:
		return s.write(rw, id, alpha)
	}

	rec, ok := s.records[id]
	if !ok {
		return fail(rw, "no record")
	}
	if op == sphinx.OpGet {
		beta, err := rec.cur.key.Evaluate(alpha)
		if err != nil {
			return fail(rw, "evaluate: %v", err)
		}
		return util.Send(rw, append(beta, rec.cur.blob...))
	}

	if err := s.auth(rw, &rec.cur, alpha); err != nil {
		return err
	}
	switch op {
	case sphinx.OpRead:
		return util.Send(rw, rec.cur.blob)
	case sphinx.OpChange:
		return s.change(rw, rec, alpha)
	case sphinx.OpCommit:
		return s.commit(rw, rec, alpha)
	case sphinx.OpUndo:
		return s.undo(rw, rec, alpha)
	case sphinx.OpDelete:
		if err := s.updateRegistry(rw, false); err != nil {
			return err
		}
		delete(s.records, id)
		return util.Send(rw, sphinx.SentinelOK)
	}
	return fail(rw, "unknown opcode %#x", byte(op))
}

// auth sends a fresh nonce, preceded by beta under e if alpha is given, and
// checks the client's signature over it.
func (s *Server) auth(rw io.ReadWriter, e *epoch, alpha []byte) error {
	nonce := make([]byte, sphinx.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	msg := nonce
	if alpha != nil {
		beta, err := e.key.Evaluate(alpha)
		if err != nil {
			return fail(rw, "evaluate: %v", err)
		}
		msg = append(beta, nonce...)
	}
	if err := util.Send(rw, msg); err != nil {
		return err
	}
	sig, err := util.Recv(rw, ed25519.SignatureSize)
	if err != nil {
		return err
	}
	if !ed25519.Verify(e.pk, nonce, sig) {
		return fail(rw, "auth: bad signature")
	}
	return nil
}

// recvRecord reads pk || blob || sig and checks the signature against the
// public key it carries.
func recvRecord(rw io.ReadWriter, max int) (epoch, error) {
	b, err := util.RecvMax(rw, ed25519.PublicKeySize+max+ed25519.SignatureSize)
	if err != nil {
		return epoch{}, err
	}
	if len(b) < ed25519.PublicKeySize+ed25519.SignatureSize {
		return epoch{}, fail(rw, "record too short: %d bytes", len(b))
	}
	pk := ed25519.PublicKey(append([]byte(nil), b[:ed25519.PublicKeySize]...))
	payload, ok := sphinx.VerifySigned(pk, b)
	if !ok {
		return epoch{}, fail(rw, "record: bad signature")
	}
	return epoch{pk: pk, blob: append([]byte(nil), payload[ed25519.PublicKeySize:]...)}, nil
}

func (s *Server) create(rw io.ReadWriter, id string, alpha []byte) error {
	if _, ok := s.records[id]; ok {
		return fail(rw, "record exists")
	}
	return s.register(rw, id, alpha)
}

// register creates the record of id and adds it to a user registry.
func (s *Server) register(rw io.ReadWriter, id string, alpha []byte) error {
	k, err := s.newKey()
	if err != nil {
		return fail(rw, "new key: %v", err)
	}
	beta, err := k.Evaluate(alpha)
	if err != nil {
		return fail(rw, "evaluate: %v", err)
	}
	if err := util.Send(rw, beta); err != nil {
		return err
	}
	e, err := recvRecord(rw, sphinx.MaxBlobSize)
	if err != nil {
		return err
	}
	e.key = k
	s.records[id] = &record{cur: e}
	return s.updateRegistry(rw, true)
}

// updateRegistry runs the registry exchange. The oracle cannot read the
// registry, so it only checks signatures. With create set a missing registry
// may be created.
func (s *Server) updateRegistry(rw io.ReadWriter, create bool) error {
	rid, err := util.Recv(rw, sphinx.IDSize)
	if err != nil {
		return err
	}
	reg, ok := s.registries[string(rid)]
	if !ok {
		if err := util.Send(rw, sphinx.SentinelNone); err != nil {
			return err
		}
		if !create {
			return errors.New("no registry")
		}
		e, err := recvRecord(rw, sphinx.MaxRegistrySize)
		if err != nil {
			return err
		}
		s.registries[string(rid)] = &e
		return nil
	}
	if err := util.Send(rw, reg.blob); err != nil {
		return err
	}
	b, err := util.RecvMax(rw, sphinx.MaxRegistrySize+ed25519.SignatureSize)
	if err != nil {
		return err
	}
	payload, ok := sphinx.VerifySigned(reg.pk, b)
	if !ok {
		return fail(rw, "registry: bad signature")
	}
	reg.blob = append([]byte(nil), payload...)
	return nil
}

func (s *Server) readRegistry(rw io.ReadWriter, id string) error {
	reg, ok := s.registries[id]
	if !ok {
		return fail(rw, "no registry")
	}
	if err := s.auth(rw, reg, nil); err != nil {
		return err
	}
	return util.Send(rw, reg.blob)
}

func (s *Server) write(rw io.ReadWriter, id string, alpha []byte) error {
	rec, ok := s.records[id]
	if !ok {
		if err := util.Send(rw, sphinx.SentinelNew); err != nil {
			return err
		}
		return s.register(rw, id, alpha)
	}
	if err := util.Send(rw, StatusExists); err != nil {
		return err
	}
	if err := s.auth(rw, &rec.cur, alpha); err != nil {
		return err
	}
	b, err := util.RecvMax(rw, sphinx.MaxBlobSize)
	if err != nil {
		return err
	}
	rec.cur.blob = b
	return nil
}

// rekey answers with beta under target and the current blob, then replaces
// the current epoch with the record the client sends back.
func (s *Server) rekey(rw io.ReadWriter, rec *record, target Evaluator, alpha []byte) (epoch, error) {
	beta, err := target.Evaluate(alpha)
	if err != nil {
		return epoch{}, fail(rw, "evaluate: %v", err)
	}
	if err := util.Send(rw, append(beta, rec.cur.blob...)); err != nil {
		return epoch{}, err
	}
	e, err := recvRecord(rw, sphinx.MaxBlobSize)
	if err != nil {
		return epoch{}, err
	}
	e.key = target
	return e, nil
}

func (s *Server) change(rw io.ReadWriter, rec *record, alpha []byte) error {
	k, err := s.newKey()
	if err != nil {
		return fail(rw, "new key: %v", err)
	}
	beta, err := k.Evaluate(alpha)
	if err != nil {
		return fail(rw, "evaluate: %v", err)
	}
	rec.pending = &epoch{key: k}
	return util.Send(rw, append(beta, rec.cur.blob...))
}

func (s *Server) commit(rw io.ReadWriter, rec *record, alpha []byte) error {
	if rec.pending == nil {
		return fail(rw, "nothing to commit")
	}
	e, err := s.rekey(rw, rec, rec.pending.key, alpha)
	if err != nil {
		return err
	}
	prev := rec.cur
	rec.prev, rec.cur, rec.pending = &prev, e, nil
	return util.Send(rw, sphinx.SentinelOK)
}

// undo drops an uncommitted change, or else reverts the last commit.
func (s *Server) undo(rw io.ReadWriter, rec *record, alpha []byte) error {
	var target Evaluator
	switch {
	case rec.pending != nil:
		target = rec.cur.key
	case rec.prev != nil:
		target = rec.prev.key
	default:
		return fail(rw, "nothing to undo")
	}
	e, err := s.rekey(rw, rec, target, alpha)
	if err != nil {
		return err
	}
	rec.cur, rec.prev, rec.pending = e, nil, nil
	return util.Send(rw, sphinx.SentinelOK)
}
