// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bpf

import "testing"

func TestHexString(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte{0}, "0x0"},
		{[]byte{2}, "0x2"},
		{[]byte{0xff, 0x00, 0x00, 0x00}, "0xff"},
		{[]byte{0x01, 0x02}, "0x201"},
	}

	for _, c := range cases {
		if got := hexString(c.in); got != c.want {
			t.Errorf("hexString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseToSizeRoundTripsHexString(t *testing.T) {
	for _, v := range []uint64{0, 1, 2, 255, 1 << 20} {
		s := hexString(uint64ToKeyBytes(v))
		buf, err := parseToSize(s, 4)
		if err != nil {
			t.Fatalf("parseToSize(%q): %v", s, err)
		}
		if got := hexString(buf); got != s {
			t.Errorf("round trip for %d: got %q, want %q", v, got, s)
		}
	}
}

func TestParseToSizeAcceptsDecimal(t *testing.T) {
	buf, err := parseToSize("10", 4)
	if err != nil {
		t.Fatalf("parseToSize: %v", err)
	}
	if got := hexString(buf); got != "0xa" {
		t.Errorf("got %q, want 0xa", got)
	}
}

func TestParseToSizeTruncatesToKeySize(t *testing.T) {
	buf, err := parseToSize("0x2", 2)
	if err != nil {
		t.Fatalf("parseToSize: %v", err)
	}
	if len(buf) != 2 {
		t.Errorf("got len %d, want 2", len(buf))
	}
}

func TestParseToSizeRejectsGarbage(t *testing.T) {
	if _, err := parseToSize("not-a-number", 4); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParseProgramType(t *testing.T) {
	cases := map[string]bool{
		"filter":    true,
		"kprobe":    true,
		"sched_cls": true,
		"sched_act": true,
		"bogus":     false,
	}

	for s, wantOK := range cases {
		_, ok := ParseProgramType(s)
		if ok != wantOK {
			t.Errorf("ParseProgramType(%q) ok = %v, want %v", s, ok, wantOK)
		}
	}
}

func uint64ToKeyBytes(v uint64) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	return buf
}
