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
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestDir(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type DirTest struct {
	clock timeutil.SimulatedClock
	dir   *Dir
}

func init() { RegisterTestSuite(&DirTest{}) }

func (t *DirTest) SetUp(ti *TestInfo) {
	t.clock.SetTime(time.Date(2015, 4, 5, 2, 15, 0, 0, time.Local))
	t.dir = newDir(0o755, &t.clock, nil)
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *DirTest) InsertAndLookUp() {
	child := newDir(0o755, &t.clock, nil)
	t.dir.insert("sub", child)

	got, ok := t.dir.child("sub")
	AssertTrue(ok)
	ExpectEq(Inode(child), got)
	ExpectEq(Inode(t.dir), child.Parent())
}

func (t *DirTest) NameOfFindsInsertedChild() {
	child := newDir(0o755, &t.clock, nil)
	t.dir.insert("sub", child)

	ExpectEq("sub", t.dir.nameOf(child))
}

func (t *DirTest) NameOfUnknownChildIsEmpty() {
	child := newDir(0o755, &t.clock, nil)
	ExpectEq("", t.dir.nameOf(child))
}

func (t *DirTest) InsertUpdatesDirAndFileCounts() {
	t.dir.insert("adir", newDir(0o755, &t.clock, nil))
	t.dir.insert("afile", newStatFile("x"))

	ExpectEq(1, t.dir.nDirs)
	ExpectEq(1, t.dir.nFiles)
}

func (t *DirTest) RemoveClearsParentAndCounts() {
	child := newDir(0o755, &t.clock, nil)
	t.dir.insert("sub", child)

	AssertTrue(t.dir.remove("sub"))
	ExpectEq(0, t.dir.nDirs)
	ExpectEq(nil, child.Parent())

	_, ok := t.dir.child("sub")
	ExpectFalse(ok)
}

func (t *DirTest) RemoveUnknownNameIsNoop() {
	ExpectFalse(t.dir.remove("nonexistent"))
}

func (t *DirTest) ReaddirListsDotAndDotDotFirst() {
	t.dir.insert("b", newStatFile("x"))
	t.dir.insert("a", newStatFile("x"))

	names := t.dir.readdir()
	ExpectThat(names, ElementsAre(".", "..", "a", "b"))
}

func (t *DirTest) GetAttrReportsNlinkFromSubdirCount() {
	t.dir.insert("sub1", newDir(0o755, &t.clock, nil))
	t.dir.insert("sub2", newDir(0o755, &t.clock, nil))

	attr, err := t.dir.GetAttr(nil)
	AssertEq(nil, err)
	ExpectEq(4, attr.Nlink) // 2 + nDirs
}

func (t *DirTest) MknodRejectsNonSocketModes() {
	_, err := t.dir.mknod("x", 0o644)
	ExpectEq(syscall.EPERM, err)
}

func (t *DirTest) MknodAcceptsSocketMode() {
	child, err := t.dir.mknod("x", os.ModeSocket|0o644)
	AssertEq(nil, err)

	got, ok := t.dir.child("x")
	AssertTrue(ok)
	ExpectEq(Inode(child), got)
	ExpectEq(tagSock, child.Tag())
}

// MknodOnExistingFDSocketAcksReadiness guards the fd-socket handoff
// protocol: mknod on a name that already resolves to a live FDSocket must
// flip its ready flag in place, never replace it with a fresh, unbound
// socket (which would leak the original's worker/listener/fd and strand a
// socket that can never become ready).
func (t *DirTest) MknodOnExistingFDSocketAcksReadiness() {
	sock := newFDSocket(&t.clock, nil, 0o600)
	t.dir.insert("fd", sock)

	_, err := sock.GetAttr(nil)
	ExpectEq(syscall.ENOENT, err)

	got, err := t.dir.mknod("fd", os.ModeSocket|0o600)
	AssertEq(nil, err)
	ExpectEq(Inode(sock), got)

	_, err = sock.GetAttr(nil)
	ExpectEq(nil, err)
}

// MknodOnExistingNonSocketIsEexist guards against silently clobbering an
// unrelated child that happens to share the mknod target's name.
func (t *DirTest) MknodOnExistingNonSocketIsEexist() {
	t.dir.insert("fd", newStatFile("x"))

	_, err := t.dir.mknod("fd", os.ModeSocket|0o600)
	ExpectEq(syscall.EEXIST, err)
}

func (t *DirTest) UnlinkRequiresWriteBit() {
	t.dir.insert("ro", newStatFile("x")) // mode 0444, no owner-write bit
	err := t.dir.unlink("ro")
	ExpectEq(syscall.EPERM, err)

	_, ok := t.dir.child("ro")
	ExpectTrue(ok)
}

func (t *DirTest) UnlinkMissingChild() {
	err := t.dir.unlink("nonexistent")
	ExpectEq(syscall.ENOENT, err)
}

////////////////////////////////////////////////////////////////////////
// self/dirLike across wrapper types
////////////////////////////////////////////////////////////////////////

type SelfTest struct {
	clock timeutil.SimulatedClock
}

func init() { RegisterTestSuite(&SelfTest{}) }

func (t *SelfTest) SetUp(ti *TestInfo) {
	t.clock.SetTime(time.Date(2015, 4, 5, 2, 15, 0, 0, time.Local))
}

// RootDirChildSeesRootDirAsParent guards against the embedding-identity bug
// this tree hit during development: a child inserted beneath RootDir must
// see the *RootDir itself (not the embedded *Dir value) as its parent, so
// that a type assertion back to *RootDir at the dispatcher succeeds.
func (t *SelfTest) RootDirChildSeesRootDirAsParent() {
	root := newRootDir(&t.clock, nil, "")
	prog, err := root.Mkdir("myprog")
	AssertEq(nil, err)

	parent := prog.Parent()
	_, ok := parent.(*RootDir)
	ExpectTrue(ok, "expected *RootDir, got %T", parent)
	ExpectEq(Inode(root), parent)
}

func (t *SelfTest) ProgramDirChildSeesProgramDirAsParent() {
	prog := newProgramDir(&t.clock, nil, "")
	dl, ok := Inode(prog).(dirLike)
	AssertTrue(ok)

	child := newStatFile("x")
	dl.asDir().insert("leaf", child)

	parent := child.Parent()
	_, ok = parent.(*ProgramDir)
	ExpectTrue(ok, "expected *ProgramDir, got %T", parent)
}
