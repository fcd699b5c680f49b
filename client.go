// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"io"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/frekui/sphinx/internal/pkg/bin2pass"
	"github.com/frekui/sphinx/internal/pkg/oprf"
	"github.com/frekui/sphinx/internal/pkg/util"
)

// OPRF is the client side of an oblivious pseudorandom function with 32 byte
// group elements.
//
// Challenge blinds the password and returns the blinding state together with
// alpha, the blinded element sent to the oracle. Finish combines the state
// with the oracle's answer beta and the record id into the 32 byte hardened
// secret rwd. Finish may be called more than once for the same state, with
// answers from different oracle epochs.
type OPRF interface {
	Challenge(password []byte) (state any, alpha []byte, err error)
	Finish(password []byte, state any, beta, id []byte) (rwd []byte, err error)
}

// Renderer turns a 32 byte key into a password using the character classes
// in classes (letters from "ulsd") and the given length (0 for the natural
// length).
type Renderer func(key []byte, classes string, length int) string

// Client runs the sphinx operations. A Client holds no per-operation state
// and can be used for any number of operations, but every operation needs its
// own stream.
type Client struct {
	keys   *KeyRing
	oprf   OPRF
	render Renderer
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithOPRF replaces the default ristretto255 OPRF.
func WithOPRF(o OPRF) Option {
	return func(c *Client) { c.oprf = o }
}

// WithRenderer replaces the default password renderer.
func WithRenderer(r Renderer) Option {
	return func(c *Client) { c.render = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns a client deriving all keys from mk. The caller keeps
// ownership of mk and must not wipe it while the client is in use.
func NewClient(mk *MasterKey, opts ...Option) *Client {
	c := &Client{
		keys:   NewKeyRing(mk),
		oprf:   oprf.NewClient(),
		render: bin2pass.Derive,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyRing returns the key derivation engine of c.
func (c *Client) KeyRing() *KeyRing {
	return c.keys
}

// IDString formats a record id for humans and logs. Ids are public.
func IDString(id []byte) string {
	return base58.Encode(id)
}

// begin sends op || id || alpha and returns the channel, the id of (host,
// user) and the OPRF blinding state.
func (c *Client) begin(rw io.ReadWriter, op Opcode, password []byte, user, host string) (*channel, []byte, any, error) {
	ch := &channel{rw: rw, op: op, log: c.log.With(zap.Stringer("op", op))}
	id := c.keys.Identity(host, user)
	state, alpha, err := c.oprf.Challenge(password)
	if err != nil {
		return nil, nil, nil, &Error{Kind: KindCrypto, Op: op.String(), Err: err}
	}
	if len(alpha) != ElementSize {
		return nil, nil, nil, cryptoError(op.String(), "OPRF challenge has %d bytes, expected %d", len(alpha), ElementSize)
	}
	ch.log = ch.log.With(zap.String("id", IDString(id)))
	ch.log.Debug("begin")
	if err := ch.send([]byte{byte(op)}, id, alpha); err != nil {
		return nil, nil, nil, err
	}
	return ch, id, state, nil
}

// finish completes the OPRF with the oracle's beta. A beta the OPRF rejects
// was produced by a broken or malicious oracle.
func (c *Client) finish(ch *channel, password []byte, state any, beta, id []byte) ([]byte, error) {
	rwd, err := c.oprf.Finish(password, state, beta, id)
	if err != nil {
		return nil, ch.fail("OPRF finish: %w", err)
	}
	if len(rwd) != RwdSize {
		util.Wipe(rwd)
		return nil, cryptoError(ch.op.String(), "OPRF output has %d bytes, expected %d", len(rwd), RwdSize)
	}
	return rwd, nil
}

// password renders the site password of rwd under rule.
func (c *Client) password(rwd []byte, rule Rule) string {
	key := PasswordKey(rwd)
	defer util.Wipe(key)
	return c.render(key, rule.Classes.String(), rule.Length)
}

// sendRecord sends a freshly keyed record: the public signing key of (id,
// rwd), the sealed plaintext, and a signature over both made with the new
// key. The oracle stores the public key and checks later writes against it.
func (c *Client) sendRecord(ch *channel, id, rwd, plaintext []byte) error {
	sealed, err := c.keys.seal(plaintext, rwd)
	if err != nil {
		return err
	}
	payload := append(c.keys.publicKey(id, rwd), sealed...)
	return ch.send(c.keys.signAttached(payload, id, rwd))
}
