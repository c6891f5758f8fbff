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

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

func TestLinkReadlink(t *testing.T) {
	l := newLink("../functions/ingress/fd")
	if got := l.Readlink(); got != "../functions/ingress/fd" {
		t.Fatalf("got %q", got)
	}
	if l.Tag() != tagLink {
		t.Fatalf("got tag %v, want tagLink", l.Tag())
	}

	attr, err := l.GetAttr(nil)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Size != uint64(len("../functions/ingress/fd")) {
		t.Fatalf("got size %d, want %d", attr.Size, len("../functions/ingress/fd"))
	}
}

// TestDirIsNeverALink guards the dispatcher's ReadSymlink type assertion:
// a Dir (or any non-Link variant) must never satisfy *Link, or the
// dispatcher would misreport a directory as readlink-able instead of
// returning EINVAL.
func TestDirIsNeverALink(t *testing.T) {
	var clock timeutil.SimulatedClock
	clock.SetTime(time.Unix(0, 0))
	dir := newDir(0o755, &clock, nil)

	if _, ok := Inode(dir).(*Link); ok {
		t.Fatalf("a Dir must never assert as *Link")
	}
}
