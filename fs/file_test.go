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

package fs

import "testing"

func TestStringFileWriteAtGrowsBuffer(t *testing.T) {
	var f StringFile

	n := f.writeAt(0, []byte("hello"))
	if n != 5 {
		t.Fatalf("got n = %d, want 5", n)
	}
	if string(f.data) != "hello" {
		t.Fatalf("got %q, want hello", f.data)
	}
	if !f.dirty {
		t.Fatalf("expected dirty after write")
	}
}

func TestStringFileWriteAtPastEndClampsOffset(t *testing.T) {
	var f StringFile
	f.writeAt(0, []byte("abc"))
	f.writeAt(100, []byte("xyz"))

	if string(f.data) != "abcxyz" {
		t.Fatalf("got %q, want abcxyz", f.data)
	}
}

func TestStringFileReadAtWindow(t *testing.T) {
	var f StringFile
	f.writeAt(0, []byte("hello world"))

	if got := string(f.readAt(6, 5)); got != "world" {
		t.Fatalf("got %q, want world", got)
	}
	if got := f.readAt(6, 100); string(got) != "world" {
		t.Fatalf("got %q, want world (clamped to EOF)", got)
	}
	if got := f.readAt(100, 5); got != nil {
		t.Fatalf("got %v, want nil past EOF", got)
	}
}

func TestStringFileTruncateGrowsWithZeros(t *testing.T) {
	var f StringFile
	f.writeAt(0, []byte("ab"))
	f.truncate(4)

	want := []byte{'a', 'b', 0, 0}
	if string(f.data) != string(want) {
		t.Fatalf("got %v, want %v", f.data, want)
	}
}

func TestStringFileTruncateShrinks(t *testing.T) {
	var f StringFile
	f.writeAt(0, []byte("hello"))
	f.truncate(2)

	if string(f.data) != "he" {
		t.Fatalf("got %q, want he", f.data)
	}
}

func TestStringFileIsEmptyOrBareNewline(t *testing.T) {
	var f StringFile
	if !f.isEmptyOrBareNewline() {
		t.Fatalf("expected a fresh buffer to count as empty")
	}

	f.writeAt(0, []byte("\n"))
	if !f.isEmptyOrBareNewline() {
		t.Fatalf("expected a bare newline to count as empty")
	}

	f.writeAt(0, []byte("sched_cls\n"))
	if f.isEmptyOrBareNewline() {
		t.Fatalf("expected non-empty content not to count as empty")
	}
}

func TestStatFileSetDataAndRead(t *testing.T) {
	s := newStatFile("0\n")
	if got := string(s.readAt(0, 100)); got != "0\n" {
		t.Fatalf("got %q, want 0\\n", got)
	}

	s.setData("1\n")
	if got := string(s.readAt(0, 100)); got != "1\n" {
		t.Fatalf("got %q, want 1\\n", got)
	}
}
