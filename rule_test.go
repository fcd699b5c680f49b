// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package sphinx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestRulePack(t *testing.T) {
	for c := Class(0); c <= allClasses; c++ {
		for _, n := range []int{0, 1, 12, MaxLength} {
			r := Rule{Classes: c, Length: n}
			got, err := UnpackRule(r.Pack())
			if err != nil {
				t.Fatal(err)
			}
			if diff := deep.Equal(got, r); diff != nil {
				t.Errorf("classes %q length %d: %v", c, n, diff)
			}
		}
	}
}

func TestRuleWireFormat(t *testing.T) {
	r, err := NewRule("uld", 12)
	if err != nil {
		t.Fatal(err)
	}
	// (u|l|d) << 7 | 12
	if got := r.Pack(); !bytes.Equal(got, []byte{0x05, 0x8c}) {
		t.Fatalf("Pack() = %x", got)
	}
}

func TestRuleLengthTruncation(t *testing.T) {
	for _, tst := range []struct {
		length, expected int
	}{
		{127, 127},
		{128, 0},
		{129, 1},
		{300, 300 & 0x7f},
	} {
		got, err := UnpackRule(Rule{Classes: Upper, Length: tst.length}.Pack())
		if err != nil {
			t.Fatal(err)
		}
		if got.Length != tst.expected || got.Classes != Upper {
			t.Errorf("length %d: got %+v", tst.length, got)
		}
	}
}

func TestParseClasses(t *testing.T) {
	for _, tst := range []struct {
		in       string
		expected Class
		err      bool
	}{
		{"", 0, false},
		{"u", Upper, false},
		{"dslu", allClasses, false},
		{"uu", Upper, false},
		{"x", 0, true},
		{"ulx", 0, true},
		{"U", 0, true},
	} {
		got, err := ParseClasses(tst.in)
		if tst.err {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseClasses(%q): expected validation error, got %v", tst.in, err)
			}
			continue
		}
		if err != nil || got != tst.expected {
			t.Errorf("ParseClasses(%q) = %v, %v", tst.in, got, err)
		}
	}
	if s := (Digit | Upper | Symbol).String(); s != "usd" {
		t.Errorf("String() = %q", s)
	}
}

func TestParseLength(t *testing.T) {
	if n, err := ParseLength(""); err != nil || n != 0 {
		t.Fatalf("ParseLength(\"\") = %d, %v", n, err)
	}
	if n, err := ParseLength("12"); err != nil || n != 12 {
		t.Fatalf("ParseLength(\"12\") = %d, %v", n, err)
	}
	if _, err := ParseLength("twelve"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnpackRuleBadLength(t *testing.T) {
	if _, err := UnpackRule([]byte{1, 2, 3}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestSealedRule(t *testing.T) {
	k := testKeyRing(t, 0)
	rwd := bytes.Repeat([]byte{4}, 32)
	r := Rule{Classes: Lower | Digit, Length: 20}
	ct, err := k.sealRule(r, rwd)
	if err != nil {
		t.Fatal(err)
	}
	if len(ct) != sealedRuleSize || sealedRuleSize != 50 {
		t.Fatalf("sealed rule has %d bytes", len(ct))
	}
	got, err := k.openRule(ct, rwd)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(got, r); diff != nil {
		t.Fatal(diff)
	}
}
