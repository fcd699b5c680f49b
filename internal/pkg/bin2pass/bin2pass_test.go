// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package bin2pass

import (
	"bytes"
	"strings"
	"testing"
)

func TestCharset(t *testing.T) {
	for _, tst := range []struct {
		classes, expected string
	}{
		{"d", digits},
		{"ud", upper + digits},
		{"du", upper + digits},
		{"ulsd", upper + lower + digits + symbols},
		{"", upper + lower + digits + symbols},
	} {
		if got := Charset(tst.classes); got != tst.expected {
			t.Errorf("Charset(%q) = %q", tst.classes, got)
		}
	}
}

func TestDerive(t *testing.T) {
	key := bytes.Repeat([]byte{0xa5}, 32)
	full := Derive(key, "uld", 0)
	if len(full) < 40 {
		t.Fatalf("full password too short: %q", full)
	}
	for _, c := range full {
		if !strings.ContainsRune(upper+lower+digits, c) {
			t.Fatalf("unexpected character %q in %q", c, full)
		}
	}
	if got := Derive(key, "uld", 12); got != full[:12] {
		t.Fatalf("truncation: got %q, expected %q", got, full[:12])
	}
	if Derive(key, "uld", 0) != full {
		t.Fatalf("Derive is not deterministic")
	}
	if Derive(key, "d", 0) == full {
		t.Fatalf("classes had no effect")
	}
	// Base 10 digits of 0x0102 = 258, least significant first.
	if got := Derive([]byte{1, 2}, "d", 0); got != "852" {
		t.Fatalf("got %q", got)
	}
}
