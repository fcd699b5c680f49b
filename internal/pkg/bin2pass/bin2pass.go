// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Package bin2pass renders a binary key as a password that can be typed on a
// keyboard.
package bin2pass

import (
	"math/big"
	"strings"
)

const (
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower   = "abcdefghijklmnopqrstuvwxyz"
	digits  = "0123456789"
	symbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// Charset returns the characters allowed by classes, a string over the
// letters u (upper case), l (lower case), d (digits) and s (symbols). The
// order of the letters in classes does not matter. Unknown letters are
// ignored. An empty selection allows every class.
func Charset(classes string) string {
	var b strings.Builder
	if strings.ContainsRune(classes, 'u') {
		b.WriteString(upper)
	}
	if strings.ContainsRune(classes, 'l') {
		b.WriteString(lower)
	}
	if strings.ContainsRune(classes, 'd') {
		b.WriteString(digits)
	}
	if strings.ContainsRune(classes, 's') {
		b.WriteString(symbols)
	}
	if b.Len() == 0 {
		return upper + lower + digits + symbols
	}
	return b.String()
}

// Derive encodes key, read as a big-endian integer, in base len(Charset(classes)),
// least significant digit first. If length is positive the result is
// truncated to length characters.
func Derive(key []byte, classes string, length int) string {
	chars := Charset(classes)
	base := big.NewInt(int64(len(chars)))
	v := new(big.Int).SetBytes(key)
	mod := new(big.Int)
	var out []byte
	for v.Sign() > 0 {
		v.DivMod(v, base, mod)
		out = append(out, chars[mod.Int64()])
	}
	if length > 0 && len(out) > length {
		out = out[:length]
	}
	return string(out)
}
