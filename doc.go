// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

/*
Package sphinx contains a client for SPHINX, a password store built on an
oblivious pseudorandom function (OPRF). SPHINX is described in [1].

The client holds a 32 byte master key and nothing else. For every site the
user types a password, possibly a weak one, and the client runs the OPRF
with a remote oracle. The result, rwd, depends on the password and on a
per-record key held by the oracle, while the oracle learns nothing about
the password and cannot brute-force it offline. The site password is
rendered from rwd according to the rule of the site: the character classes
to use and the password length. Rules are stored at the oracle, sealed to a
key only the client can derive.

Records are addressed by an id derived from the master key, the host and
the user name, so the oracle does not learn them either. Updates to a record
are signed with a key derived from the id and rwd; the oracle keeps the
public half and checks every later update against it.

A Client runs one operation per stream. The streams are plain
io.ReadWriters; cmd/sphinx connects them to an oracle over TLS.

	Create            new record and rule, returns the password
	Get               returns the password
	Change            new oracle key, pending until Commit or Undo
	Commit            makes the pending key current
	Undo              goes back to the previous key
	Delete            removes the record
	Write, Read       store and load a sealed free-form blob
	ListUsers         the users with a record at a host

For every host the client also keeps a registry of the user names it has
records for, sealed like the rules, so that ListUsers works without a
password.

Secrets (the master key, rwd and everything derived from them) are wiped
after use on a best effort basis.

IMPORTANT NOTE: This code has been written for educational purposes only. No
experts in cryptography or IT security have reviewed it. Do not use it for
anything important.

[1] Jarecki, S., Krawczyk, H., Shirvanian, M., and N. Saxena, "SPHINX: A
Password Store that Perfectly Hides Passwords from Itself", ICDCS, 2017.
(Available at https://eprint.iacr.org/2018/695.pdf)
*/
package sphinx
