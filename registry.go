// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

// Every host has a user registry: the set of user names the client holds a
// record for at that host. It lives at the oracle as one blob under
// Identity(host, ""), sealed and signed with an empty rwd so that it can be
// listed without any password.
//
// Registry updates are not transactional with the record they describe. If
// the client dies between the two, the registry and the records disagree
// until the user fixes it by hand.

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

type registry map[string]struct{}

// decodeRegistry parses the NUL separated user list of a registry blob.
// Empty names are kept, so an empty blob is the registry of the user "".
func decodeRegistry(b []byte) registry {
	r := registry{}
	for _, u := range strings.Split(string(b), "\x00") {
		r[u] = struct{}{}
	}
	return r
}

func (r registry) sorted() []string {
	users := make([]string, 0, len(r))
	for u := range r {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (r registry) encode() []byte {
	return []byte(strings.Join(r.sorted(), "\x00"))
}

// listing returns the sorted user names separated by newlines.
func (r registry) listing() string {
	return strings.Join(r.sorted(), "\n")
}

func (c *Client) openRegistry(blob []byte) (registry, error) {
	b, err := c.keys.open(blob, nil)
	if err != nil {
		return nil, err
	}
	return decodeRegistry(b), nil
}

// fetchRegistry sends the registry id of host and reads the oracle's answer:
// the sealed registry, or "none" if there is none yet.
func (c *Client) fetchRegistry(ch *channel, host string) (id []byte, reg registry, err error) {
	id = c.keys.Identity(host, "")
	if err := ch.send(id); err != nil {
		return nil, nil, err
	}
	resp, err := ch.recvMax(MaxRegistrySize)
	if err != nil {
		return nil, nil, err
	}
	switch resp.kind {
	case respNone:
		return id, nil, nil
	case respData:
		reg, err := c.openRegistry(resp.data)
		if err != nil {
			return nil, nil, err
		}
		return id, reg, nil
	}
	return nil, nil, ch.fail("unexpected %q while fetching the user registry", resp.kind)
}

// storeRegistry seals and signs reg. A new registry carries its public key
// in front so that the oracle can verify later updates.
func (c *Client) storeRegistry(ch *channel, id []byte, reg registry, isNew bool) error {
	sealed, err := c.keys.seal(reg.encode(), nil)
	if err != nil {
		return err
	}
	payload := sealed
	if isNew {
		payload = append(c.keys.publicKey(id, nil), sealed...)
	}
	return ch.send(c.keys.signAttached(payload, id, nil))
}

// registryAdd adds user to the registry of host, creating the registry if
// the oracle has none.
func (c *Client) registryAdd(ch *channel, host, user string) error {
	id, reg, err := c.fetchRegistry(ch, host)
	if err != nil {
		return err
	}
	isNew := reg == nil
	if isNew {
		reg = registry{}
	}
	if _, ok := reg[user]; ok {
		c.log.Warn("user already in registry", zap.String("host", host))
	}
	reg[user] = struct{}{}
	return c.storeRegistry(ch, id, reg, isNew)
}

// registryRemove removes user from the registry of host. A missing registry
// or user means local and remote state disagree; nothing is written then.
func (c *Client) registryRemove(ch *channel, host, user string) error {
	id, reg, err := c.fetchRegistry(ch, host)
	if err != nil {
		return err
	}
	if reg == nil {
		return ch.fail("oracle has no user registry for this host, something is corrupt")
	}
	if _, ok := reg[user]; !ok {
		return ch.fail("user is not in the registry of this host, something is corrupt")
	}
	delete(reg, user)
	return c.storeRegistry(ch, id, reg, false)
}

