// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/frekui/sphinx"
	"github.com/frekui/sphinx/internal/pkg/bin2pass"
	"github.com/frekui/sphinx/internal/pkg/sphinxtest"
)

type env struct {
	t      *testing.T
	c      *sphinx.Client
	oracle *sphinxtest.Server
}

func newEnv(t *testing.T, opts ...sphinx.Option) *env {
	mk, err := sphinx.NewMasterKey(make([]byte, sphinx.MasterKeySize))
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]sphinx.Option{sphinx.WithOPRF(sphinxtest.StubOPRF{})}, opts...)
	return &env{
		t:      t,
		c:      sphinx.NewClient(mk, opts...),
		oracle: sphinxtest.NewServer(sphinxtest.StubKeys([]byte("seed"))),
	}
}

func (e *env) create(pwd, user, host, classes string, length int) (string, error) {
	var out string
	err := e.oracle.Do(func(rw io.ReadWriter) (err error) {
		out, err = e.c.Create(rw, []byte(pwd), user, host, classes, length)
		return err
	})
	return out, err
}

type opFunc func(rw io.ReadWriter, password []byte, user, host string) (string, error)

func (e *env) run(op opFunc, pwd, user, host string) (string, error) {
	var out string
	err := e.oracle.Do(func(rw io.ReadWriter) (err error) {
		out, err = op(rw, []byte(pwd), user, host)
		return err
	})
	return out, err
}

func (e *env) mustRun(op opFunc, pwd, user, host string) string {
	e.t.Helper()
	out, err := e.run(op, pwd, user, host)
	if err != nil {
		e.t.Fatal(err)
	}
	return out
}

func (e *env) list(host string) (string, error) {
	var out string
	err := e.oracle.Do(func(rw io.ReadWriter) (err error) {
		out, err = e.c.ListUsers(rw, host)
		return err
	})
	return out, err
}

func (e *env) write(pwd, payload, user, host string) error {
	return e.oracle.Do(func(rw io.ReadWriter) error {
		return e.c.Write(rw, []byte(pwd), []byte(payload), user, host)
	})
}

func (e *env) read(pwd, user, host string) (string, error) {
	var out []byte
	err := e.oracle.Do(func(rw io.ReadWriter) (err error) {
		out, err = e.c.Read(rw, []byte(pwd), user, host)
		return err
	})
	return string(out), err
}

func (e *env) delete(pwd, user, host string) error {
	return e.oracle.Do(func(rw io.ReadWriter) error {
		return e.c.Delete(rw, []byte(pwd), user, host)
	})
}

func checkCharset(t *testing.T, pwd, classes string) {
	t.Helper()
	chars := bin2pass.Charset(classes)
	for _, r := range pwd {
		if !strings.ContainsRune(chars, r) {
			t.Fatalf("password %q has %q outside of class %q", pwd, r, classes)
		}
	}
}

func TestCreateGet(t *testing.T) {
	e := newEnv(t)
	pwd, err := e.create("weak123", "alice", "example.com", "uld", 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(pwd) != 12 {
		t.Fatalf("len(%q) = %d", pwd, len(pwd))
	}
	checkCharset(t, pwd, "uld")

	for i := 0; i < 3; i++ {
		if got := e.mustRun(e.c.Get, "weak123", "alice", "example.com"); got != pwd {
			t.Fatalf("get returned %q, create returned %q", got, pwd)
		}
	}

	if _, err := e.run(e.c.Get, "weak124", "alice", "example.com"); !errors.Is(err, sphinx.ErrCrypto) {
		t.Fatalf("get with wrong password: expected crypto error, got %v", err)
	}
	if _, err := e.create("weak123", "alice", "example.com", "uld", 12); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("second create: expected protocol error, got %v", err)
	}
	if _, err := e.run(e.c.Get, "weak123", "bob", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("get of unknown user: expected protocol error, got %v", err)
	}
}

func TestCreateReproducible(t *testing.T) {
	var pwds []string
	for i := 0; i < 2; i++ {
		e := newEnv(t)
		pwd, err := e.create("weak123", "alice", "example.com", "uld", 12)
		if err != nil {
			t.Fatal(err)
		}
		pwds = append(pwds, pwd)
	}
	if pwds[0] != pwds[1] {
		t.Fatalf("two fresh oracles gave %q and %q", pwds[0], pwds[1])
	}
	// Computed independently from the zero master key, StubOPRF and the
	// first key of StubKeys("seed").
	if pwds[0] != "WtgCPH77qq6S" {
		t.Fatalf("create returned %q, expected %q", pwds[0], "WtgCPH77qq6S")
	}
}

func TestCreateRules(t *testing.T) {
	e := newEnv(t)
	for _, tst := range []struct {
		user, classes string
		length        int
		expected      int
	}{
		{"d", "d", 0, -1},
		{"s", "s", 20, 20},
		{"all", "", 8, 8},
		{"max", "ulsd", 127, -1},
		{"wrap", "l", 128 + 5, 5},
	} {
		pwd, err := e.create("pw", tst.user, "rules.example", tst.classes, tst.length)
		if err != nil {
			t.Fatal(err)
		}
		if tst.expected >= 0 && len(pwd) != tst.expected {
			t.Errorf("%s: len(%q) = %d, expected %d", tst.user, pwd, len(pwd), tst.expected)
		}
		checkCharset(t, pwd, tst.classes)
		if got := e.mustRun(e.c.Get, "pw", tst.user, "rules.example"); got != pwd {
			t.Errorf("%s: get returned %q, create returned %q", tst.user, got, pwd)
		}
	}
}

func TestValidationBeforeIO(t *testing.T) {
	e := newEnv(t)
	var rw failingRW
	if _, err := e.c.Create(&rw, []byte("pw"), "alice", "example.com", "ulx", 12); !errors.Is(err, sphinx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	big := make([]byte, sphinx.MaxPayloadSize+1)
	if err := e.c.Write(&rw, []byte("pw"), big, "alice", "example.com"); !errors.Is(err, sphinx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rw.used {
		t.Fatal("channel used before validation")
	}
}

type failingRW struct {
	used bool
}

func (f *failingRW) Read([]byte) (int, error) {
	f.used = true
	return 0, io.ErrClosedPipe
}

func (f *failingRW) Write([]byte) (int, error) {
	f.used = true
	return 0, io.ErrClosedPipe
}

func TestChangeCommitUndo(t *testing.T) {
	e := newEnv(t)
	id := e.c.KeyRing().Identity("example.com", "alice")
	p0, err := e.create("pw", "alice", "example.com", "uld", 16)
	if err != nil {
		t.Fatal(err)
	}

	p1 := e.mustRun(e.c.Change, "pw", "alice", "example.com")
	if p1 == p0 {
		t.Fatal("change returned the old password")
	}
	if len(p1) != 16 {
		t.Fatalf("change lost the rule: %q", p1)
	}
	if !e.oracle.HasPending(id) {
		t.Fatal("no pending change at the oracle")
	}
	if got := e.mustRun(e.c.Get, "pw", "alice", "example.com"); got != p0 {
		t.Fatalf("get during pending change returned %q, expected %q", got, p0)
	}

	if got := e.mustRun(e.c.Commit, "pw", "alice", "example.com"); got != p1 {
		t.Fatalf("commit returned %q, change returned %q", got, p1)
	}
	if got := e.mustRun(e.c.Get, "pw", "alice", "example.com"); got != p1 {
		t.Fatalf("get after commit returned %q, expected %q", got, p1)
	}

	if got := e.mustRun(e.c.Undo, "pw", "alice", "example.com"); got != p0 {
		t.Fatalf("undo returned %q, expected %q", got, p0)
	}
	if got := e.mustRun(e.c.Get, "pw", "alice", "example.com"); got != p0 {
		t.Fatalf("get after undo returned %q, expected %q", got, p0)
	}
	if _, err := e.run(e.c.Undo, "pw", "alice", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("second undo: expected protocol error, got %v", err)
	}
}

func TestChangeUndo(t *testing.T) {
	e := newEnv(t)
	id := e.c.KeyRing().Identity("example.com", "alice")
	p0, err := e.create("pw", "alice", "example.com", "ld", 0)
	if err != nil {
		t.Fatal(err)
	}
	e.mustRun(e.c.Change, "pw", "alice", "example.com")
	if got := e.mustRun(e.c.Undo, "pw", "alice", "example.com"); got != p0 {
		t.Fatalf("undo returned %q, expected %q", got, p0)
	}
	if e.oracle.HasPending(id) {
		t.Fatal("undo left the change pending")
	}
	if _, err := e.run(e.c.Commit, "pw", "alice", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("commit without change: expected protocol error, got %v", err)
	}
	if got := e.mustRun(e.c.Get, "pw", "alice", "example.com"); got != p0 {
		t.Fatalf("get returned %q, expected %q", got, p0)
	}
}

// wideOPRF returns an rwd longer than any key BLAKE2b accepts.
type wideOPRF struct {
	sphinxtest.StubOPRF
}

func (o wideOPRF) Finish(password []byte, state any, beta, id []byte) ([]byte, error) {
	rwd, err := o.StubOPRF.Finish(password, state, beta, id)
	if err != nil {
		return nil, err
	}
	return bytes.Repeat(rwd, 3), nil
}

func TestOPRFOutputSize(t *testing.T) {
	e := newEnv(t)
	if _, err := e.create("pw", "alice", "example.com", "uld", 0); err != nil {
		t.Fatal(err)
	}
	wide := newEnv(t, sphinx.WithOPRF(wideOPRF{}))
	wide.oracle = e.oracle
	if _, err := wide.create("pw", "bob", "example.com", "uld", 0); !errors.Is(err, sphinx.ErrCrypto) {
		t.Fatalf("create: expected crypto error, got %v", err)
	}
	if _, err := wide.run(wide.c.Get, "pw", "alice", "example.com"); !errors.Is(err, sphinx.ErrCrypto) {
		t.Fatalf("get: expected crypto error, got %v", err)
	}
	if e.oracle.HasRecord(e.c.KeyRing().Identity("example.com", "bob")) {
		t.Fatal("record stored after a bad OPRF output")
	}
}

func TestWrongPasswordAuth(t *testing.T) {
	e := newEnv(t)
	if _, err := e.create("pw", "alice", "example.com", "uld", 0); err != nil {
		t.Fatal(err)
	}
	for _, op := range []opFunc{e.c.Change, e.c.Commit, e.c.Undo} {
		if _, err := e.run(op, "wrong", "alice", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
			t.Fatalf("expected protocol error, got %v", err)
		}
	}
	if err := e.delete("wrong", "alice", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("delete: expected protocol error, got %v", err)
	}
	if !e.oracle.HasRecord(e.c.KeyRing().Identity("example.com", "alice")) {
		t.Fatal("record deleted with the wrong password")
	}
}

func TestRegistry(t *testing.T) {
	e := newEnv(t)
	for _, u := range []struct{ user, host string }{
		{"bob", "example.com"},
		{"alice", "example.com"},
		{"carol", "example.org"},
	} {
		if _, err := e.create("pw", u.user, u.host, "uld", 0); err != nil {
			t.Fatal(err)
		}
	}
	regid := e.c.KeyRing().Identity("example.com", "")
	if !e.oracle.HasRegistry(regid) {
		t.Fatal("no registry at the oracle")
	}

	got, err := e.list("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(strings.Split(got, "\n"), []string{"alice", "bob"}); diff != nil {
		t.Fatal(diff)
	}

	if err := e.delete("pw", "alice", "example.com"); err != nil {
		t.Fatal(err)
	}
	if e.oracle.HasRecord(e.c.KeyRing().Identity("example.com", "alice")) {
		t.Fatal("record still at the oracle after delete")
	}
	if got, err := e.list("example.com"); err != nil || got != "bob" {
		t.Fatalf("list after delete = %q, %v", got, err)
	}
	if got, err := e.list("example.org"); err != nil || got != "carol" {
		t.Fatalf("list of other host = %q, %v", got, err)
	}
	if _, err := e.run(e.c.Get, "pw", "alice", "example.com"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("get after delete: expected protocol error, got %v", err)
	}
	if _, err := e.list("nothing.example"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("list of unknown host: expected protocol error, got %v", err)
	}
}

func TestRegistryIsSealed(t *testing.T) {
	e := newEnv(t)
	if _, err := e.create("pw", "alice", "example.com", "uld", 0); err != nil {
		t.Fatal(err)
	}
	blob := e.oracle.Blob(e.c.KeyRing().Identity("example.com", ""))
	if len(blob) != len("alice")+sphinx.SealOverhead {
		t.Fatalf("registry blob has %d bytes", len(blob))
	}
	if bytes.Contains(blob, []byte("alice")) {
		t.Fatal("registry is readable by the oracle")
	}
}

func TestWriteRead(t *testing.T) {
	e := newEnv(t)
	if err := e.write("pw", "first secret", "alice", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if got, err := e.read("pw", "alice", "notes.example"); err != nil || got != "first secret" {
		t.Fatalf("read = %q, %v", got, err)
	}
	if got, err := e.list("notes.example"); err != nil || got != "alice" {
		t.Fatalf("list after first write = %q, %v", got, err)
	}

	second := strings.Repeat("line\n", 100)
	if err := e.write("pw", second, "alice", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if got, err := e.read("pw", "alice", "notes.example"); err != nil || got != second {
		t.Fatalf("read after overwrite = %q, %v", got, err)
	}
	// Writes to an existing record are not acknowledged, so a rejected
	// write is only visible at the oracle.
	e.write("wrong", "evil", "alice", "notes.example")
	if got, err := e.read("pw", "alice", "notes.example"); err != nil || got != second {
		t.Fatalf("read after rejected write = %q, %v", got, err)
	}
	if _, err := e.read("wrong", "alice", "notes.example"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("read with wrong password: expected protocol error, got %v", err)
	}
	if _, err := e.read("pw", "bob", "notes.example"); !errors.Is(err, sphinx.ErrProtocol) {
		t.Fatalf("read of unknown record: expected protocol error, got %v", err)
	}
}

func TestWriteEmptyPayload(t *testing.T) {
	e := newEnv(t)
	if err := e.write("pw", "", "alice", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if got, err := e.read("pw", "alice", "notes.example"); err != nil || got != "" {
		t.Fatalf("read = %q, %v", got, err)
	}
}

func TestWriteDeleteWithoutUser(t *testing.T) {
	e := newEnv(t)
	if err := e.write("pw", "note", "", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if got, err := e.read("pw", "", "notes.example"); err != nil || got != "note" {
		t.Fatalf("read = %q, %v", got, err)
	}
	if err := e.write("pw", "other note", "alice", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if got, err := e.list("notes.example"); err != nil || got != "\nalice" {
		t.Fatalf("list = %q, %v", got, err)
	}

	if err := e.delete("pw", "", "notes.example"); err != nil {
		t.Fatal(err)
	}
	if e.oracle.HasRecord(e.c.KeyRing().Identity("notes.example", "")) {
		t.Fatal("record still at the oracle after delete")
	}
	if got, err := e.list("notes.example"); err != nil || got != "alice" {
		t.Fatalf("list after delete = %q, %v", got, err)
	}
	if got, err := e.read("pw", "alice", "notes.example"); err != nil || got != "other note" {
		t.Fatalf("read = %q, %v", got, err)
	}
}

func TestRenderer(t *testing.T) {
	var gotClasses string
	var gotLength int
	e := newEnv(t, sphinx.WithRenderer(func(key []byte, classes string, length int) string {
		gotClasses, gotLength = classes, length
		return "rendered"
	}))
	pwd, err := e.create("pw", "alice", "example.com", "dsu", 140)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal([]any{pwd, gotClasses, gotLength}, []any{"rendered", "usd", 140 & sphinx.MaxLength}); diff != nil {
		t.Fatal(diff)
	}
}

func TestCirclOPRF(t *testing.T) {
	mk, err := sphinx.NewMasterKey(bytes.Repeat([]byte{0x42}, sphinx.MasterKeySize))
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		t:      t,
		c:      sphinx.NewClient(mk),
		oracle: sphinxtest.NewServer(sphinxtest.CirclKeys()),
	}
	p0, err := e.create("correct horse", "alice", "example.com", "uls", 24)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.mustRun(e.c.Get, "correct horse", "alice", "example.com"); got != p0 {
		t.Fatalf("get returned %q, create returned %q", got, p0)
	}
	if _, err := e.run(e.c.Get, "battery staple", "alice", "example.com"); !errors.Is(err, sphinx.ErrCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
	p1 := e.mustRun(e.c.Change, "correct horse", "alice", "example.com")
	if got := e.mustRun(e.c.Commit, "correct horse", "alice", "example.com"); got != p1 || got == p0 {
		t.Fatalf("commit returned %q (old %q, changed %q)", got, p0, p1)
	}
}
