// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"io"

	"go.uber.org/zap"

	"github.com/frekui/sphinx/internal/pkg/util"
)

// MaxPayloadSize is the largest payload Write accepts.
const MaxPayloadSize = MaxBlobSize - SealOverhead

// Create registers a new record for user at host and returns its password.
//
//	-> CREATE || id || alpha
//	<- beta (32) | "fail"
//	-> pk || sealed rule || sig
//
// followed by the addition of user to the registry of host. classes and
// length are validated before anything is sent.
func (c *Client) Create(rw io.ReadWriter, password []byte, user, host, classes string, length int) (string, error) {
	rule, err := NewRule(classes, length)
	if err != nil {
		return "", err
	}
	// The oracle only ever sees the packed rule, so render from that.
	if rule, err = UnpackRule(rule.Pack()); err != nil {
		return "", err
	}

	ch, id, state, err := c.begin(rw, OpCreate, password, user, host)
	if err != nil {
		return "", err
	}
	beta, err := ch.recvData(ElementSize, "beta")
	if err != nil {
		return "", err
	}
	rwd, err := c.finish(ch, password, state, beta, id)
	if err != nil {
		return "", err
	}
	defer util.Wipe(rwd)

	if err := c.sendRecord(ch, id, rwd, rule.Pack()); err != nil {
		return "", err
	}
	if err := c.registryAdd(ch, host, user); err != nil {
		return "", err
	}
	return c.password(rwd, rule), nil
}

// Get returns the password of user at host. It has no side effects.
//
//	-> GET || id || alpha
//	<- beta (32) || sealed rule (50) | "fail"
func (c *Client) Get(rw io.ReadWriter, password []byte, user, host string) (string, error) {
	return c.sphinx(rw, OpGet, password, user, host)
}

// Change makes the oracle generate a new epoch for the record and returns
// the password of the new epoch. The change is pending until Commit or Undo.
func (c *Client) Change(rw io.ReadWriter, password []byte, user, host string) (string, error) {
	return c.sphinx(rw, OpChange, password, user, host)
}

// Commit finalizes a pending change and returns the new password.
func (c *Client) Commit(rw io.ReadWriter, password []byte, user, host string) (string, error) {
	return c.sphinx(rw, OpCommit, password, user, host)
}

// Undo reverts the record to its previous epoch and returns the password of
// that epoch.
func (c *Client) Undo(rw io.ReadWriter, password []byte, user, host string) (string, error) {
	return c.sphinx(rw, OpUndo, password, user, host)
}

// sphinx runs get, change, commit and undo:
//
//	-> OP || id || alpha
//	   auth (all but GET), yields crwd of the current epoch
//	<- beta (32) || sealed rule (50)
//	   commit and undo only:
//	-> pk' || rule sealed under rwd || sig'
//	<- "ok"
//
// For change, commit and undo beta is evaluated under the epoch the
// operation moves to, while the rule is still sealed under crwd. There is no
// recovery if the stream breaks after a change: run commit or undo against
// whatever epoch the oracle holds.
func (c *Client) sphinx(rw io.ReadWriter, op Opcode, password []byte, user, host string) (string, error) {
	ch, id, state, err := c.begin(rw, op, password, user, host)
	if err != nil {
		return "", err
	}

	var crwd []byte
	if op != OpGet {
		crwd, err = c.auth(ch, id, password, state)
		if err != nil {
			return "", err
		}
		defer util.Wipe(crwd)
	}

	msg, err := ch.recvData(ElementSize+sealedRuleSize, "beta and rule")
	if err != nil {
		return "", err
	}
	rwd, err := c.finish(ch, password, state, msg[:ElementSize], id)
	if err != nil {
		return "", err
	}
	defer util.Wipe(rwd)

	ruleKey := rwd
	if crwd != nil {
		ruleKey = crwd
	}
	rule, err := c.keys.openRule(msg[ElementSize:], ruleKey)
	if err != nil {
		return "", err
	}

	if op == OpCommit || op == OpUndo {
		if err := c.sendRecord(ch, id, rwd, rule.Pack()); err != nil {
			return "", err
		}
		if err := ch.recvAck(); err != nil {
			return "", err
		}
	}
	return c.password(rwd, rule), nil
}

// Delete removes the record of user at host and drops user from the
// registry of host.
//
//	-> DELETE || id || alpha
//	   auth
//	-> registry id
//	<- sealed registry | "none"
//	-> updated registry || sig
//	<- "ok"
//
// A missing registry is reported as corruption; none is created.
func (c *Client) Delete(rw io.ReadWriter, password []byte, user, host string) error {
	ch, id, state, err := c.begin(rw, OpDelete, password, user, host)
	if err != nil {
		return err
	}
	rwd, err := c.auth(ch, id, password, state)
	if err != nil {
		return err
	}
	defer util.Wipe(rwd)

	if err := c.registryRemove(ch, host, user); err != nil {
		return err
	}
	return ch.recvAck()
}

// Write stores payload, sealed, in the record of user at host. Password and
// payload are separate arguments and are never joined.
//
//	-> WRITE || id || alpha
//	<- status (3)
//
// If status is "new" the id is unknown to the oracle and the record is
// created like in Create, with payload in place of the rule:
//
//	<- beta (32)
//	-> pk || sealed payload || sig
//	   registry add
//
// Otherwise the writer authenticates and sends the sealed payload alone.
func (c *Client) Write(rw io.ReadWriter, password, payload []byte, user, host string) error {
	if len(payload) > MaxPayloadSize {
		return validationError("write", "payload has %d bytes, at most %d are allowed", len(payload), MaxPayloadSize)
	}
	ch, id, state, err := c.begin(rw, OpWrite, password, user, host)
	if err != nil {
		return err
	}
	status, err := ch.recv(StatusSize)
	if err != nil {
		return err
	}

	if status.kind == respNew {
		beta, err := ch.recvData(ElementSize, "beta")
		if err != nil {
			return err
		}
		rwd, err := c.finish(ch, password, state, beta, id)
		if err != nil {
			return err
		}
		defer util.Wipe(rwd)
		if err := c.sendRecord(ch, id, rwd, payload); err != nil {
			return err
		}
		return c.registryAdd(ch, host, user)
	}

	rwd, err := c.auth(ch, id, password, state)
	if err != nil {
		return err
	}
	defer util.Wipe(rwd)
	sealed, err := c.keys.seal(payload, rwd)
	if err != nil {
		return err
	}
	return ch.send(sealed)
}

// Read returns the payload stored by Write for user at host.
//
//	-> READ || id || alpha
//	   auth
//	<- sealed payload
func (c *Client) Read(rw io.ReadWriter, password []byte, user, host string) ([]byte, error) {
	ch, id, state, err := c.begin(rw, OpRead, password, user, host)
	if err != nil {
		return nil, err
	}
	rwd, err := c.auth(ch, id, password, state)
	if err != nil {
		return nil, err
	}
	defer util.Wipe(rwd)

	resp, err := ch.recvMax(MaxBlobSize)
	if err != nil {
		return nil, err
	}
	if resp.kind != respData {
		return nil, ch.fail("no blob found, oracle answered %q", resp.kind)
	}
	return c.keys.open(resp.data, rwd)
}

// ListUsers returns the user names registered at host, sorted and separated
// by newlines. No password is needed: the registry is read with plain auth
// and an empty rwd.
//
//	-> READ || registry id
//	<- nonce (32)
//	-> sig
//	<- sealed registry
func (c *Client) ListUsers(rw io.ReadWriter, host string) (string, error) {
	id := c.keys.Identity(host, "")
	ch := &channel{rw: rw, op: OpRead, log: c.log.With(zap.Stringer("op", OpRead), zap.String("id", IDString(id)))}
	ch.log.Debug("list")
	if err := ch.send([]byte{byte(OpRead)}, id); err != nil {
		return "", err
	}
	rwd, err := c.auth(ch, id, nil, nil)
	if err != nil {
		return "", err
	}
	defer util.Wipe(rwd)

	resp, err := ch.recvMax(MaxRegistrySize)
	if err != nil {
		return "", err
	}
	if resp.kind != respData {
		return "", ch.fail("no user registry for this host, oracle answered %q", resp.kind)
	}
	reg, err := c.openRegistry(resp.data)
	if err != nil {
		return "", err
	}
	return reg.listing(), nil
}
