// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"crypto/ed25519"

	"github.com/frekui/sphinx/internal/pkg/util"
)

// auth runs the authentication subprotocol. The client proves to the oracle
// that it holds the signing key registered for id by signing a fresh nonce.
//
// With a nil blinding state auth runs in plain mode, used for the user
// registries: the oracle sends
//
//	nonce (32)
//
// and the signing key is derived with an empty rwd. Otherwise the oracle
// sends
//
//	beta (32) || nonce (32)
//
// where beta is the oracle's answer to the alpha the client sent with the
// request under the current epoch, and the signing key is derived from the
// resulting rwd. In both cases the client answers with the 64 byte detached
// signature of the nonce.
//
// auth returns rwd (empty in plain mode). The caller must wipe it.
func (c *Client) auth(ch *channel, id, password []byte, state any) ([]byte, error) {
	var nonce, rwd []byte
	if state == nil {
		n, err := ch.recvData(NonceSize, "auth nonce")
		if err != nil {
			return nil, err
		}
		nonce, rwd = n, []byte{}
	} else {
		msg, err := ch.recvData(ElementSize+NonceSize, "auth challenge")
		if err != nil {
			return nil, err
		}
		nonce = msg[ElementSize:]
		rwd, err = c.finish(ch, password, state, msg[:ElementSize], id)
		if err != nil {
			return nil, err
		}
	}

	sk := c.keys.SigningKey(id, rwd)
	defer util.Wipe(sk)
	if err := ch.send(ed25519.Sign(sk, nonce)); err != nil {
		util.Wipe(rwd)
		return nil, err
	}
	return rwd, nil
}
