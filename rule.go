// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Class is a set of character classes a rendered password may use.
type Class uint8

// The bit order is part of the wire format.
const (
	Upper Class = 1 << iota
	Lower
	Symbol
	Digit
)

const allClasses = Upper | Lower | Symbol | Digit

var classLetters = []struct {
	class  Class
	letter rune
}{
	{Upper, 'u'},
	{Lower, 'l'},
	{Symbol, 's'},
	{Digit, 'd'},
}

// ParseClasses parses a string over the letters u, l, s and d.
func ParseClasses(s string) (Class, error) {
	var c Class
outer:
	for _, r := range s {
		for _, cl := range classLetters {
			if r == cl.letter {
				c |= cl.class
				continue outer
			}
		}
		return 0, validationError("rule", "rules can only contain any of 'ulsd', got %q", r)
	}
	return c, nil
}

// String returns the letters of c in the order u, l, s, d.
func (c Class) String() string {
	var b strings.Builder
	for _, cl := range classLetters {
		if c&cl.class != 0 {
			b.WriteRune(cl.letter)
		}
	}
	return b.String()
}

// MaxLength is the largest password length a Rule can carry.
const MaxLength = 0x7f

// Rule is the password policy of a site: which character classes to use and
// how long the password is. Length 0 means the full rendered length.
type Rule struct {
	Classes Class
	Length  int
}

// NewRule validates classes and returns the corresponding Rule. Length is
// kept as given and masked to 7 bits by Pack.
func NewRule(classes string, length int) (Rule, error) {
	c, err := ParseClasses(classes)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Classes: c, Length: length}, nil
}

// ParseLength parses a password length given on the command line.
func ParseLength(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, validationError("rule", "size has to be integer, got %q", s)
	}
	return n, nil
}

// ruleSize is the size of a packed rule.
const ruleSize = 2

// sealedRuleSize is the size of a sealed rule blob on the wire.
const sealedRuleSize = ruleSize + SealOverhead

// Pack encodes r as a big-endian 16 bit word: the low 7 bits hold the length
// (larger values are truncated, not rejected), the next 4 bits the classes.
func (r Rule) Pack() []byte {
	w := uint16(r.Classes&allClasses)<<7 | uint16(r.Length)&MaxLength
	b := make([]byte, ruleSize)
	binary.BigEndian.PutUint16(b, w)
	return b
}

// UnpackRule decodes a rule produced by Pack.
func UnpackRule(b []byte) (Rule, error) {
	if len(b) != ruleSize {
		return Rule{}, protocolError("rule", "packed rule has %d bytes, expected %d", len(b), ruleSize)
	}
	w := binary.BigEndian.Uint16(b)
	return Rule{
		Classes: Class(w>>7) & allClasses,
		Length:  int(w & MaxLength),
	}, nil
}

func (k *KeyRing) sealRule(r Rule, rwd []byte) ([]byte, error) {
	return k.seal(r.Pack(), rwd)
}

// openRule opens a sealed rule blob with rwd and decodes it.
func (k *KeyRing) openRule(ciphertext, rwd []byte) (Rule, error) {
	b, err := k.open(ciphertext, rwd)
	if err != nil {
		return Rule{}, err
	}
	return UnpackRule(b)
}
