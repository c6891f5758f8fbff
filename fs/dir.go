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
	"log"
	"os"
	"sort"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// unlinker is implemented by children that must run a side effect (such as
// a kernel map delete) when removed from their parent directory. The
// tree-level removal in Dir.unlink happens regardless of whether this
// returns an error.
type unlinker interface {
	unlinkSelf() error
}

// dirLike is implemented by every directory variant (Dir itself, and
// RootDir/ProgramDir/FunctionDir/MapDir via embedding). asDir recovers the
// embedded *Dir so generic tree code (the dispatcher) can reach
// children/mu without knowing the concrete outer type.
type dirLike interface {
	Inode
	asDir() *Dir
}

// Dir owns a name-to-inode mapping with unique keys. It tracks nFiles and
// nDirs, derived from the tag of each child, so that stat can report
// nlink as 2+nDirs without walking the map. self is the outer Inode value
// (itself, for a plain Dir; the embedding RootDir/ProgramDir/FunctionDir/
// MapDir pointer otherwise) recorded as the parent of every child so that
// Parent() sees the concrete type clients actually look up by inode ID,
// not the embedded Dir field.
type Dir struct {
	base

	self   Inode
	logger *log.Logger

	// GUARDED_BY(mu)
	children map[string]Inode
	nFiles   int
	nDirs    int
}

func newDir(mode os.FileMode, clock timeutil.Clock, logger *log.Logger) *Dir {
	d := &Dir{
		base: base{
			clock: clock,
			kind:  tagDir,
			mode:  mode | os.ModeDir,
		},
		logger:   logger,
		children: make(map[string]Inode),
	}
	d.self = d
	return d
}

func (d *Dir) asDir() *Dir { return d }

// child looks up a direct child by name.
//
// SHARED_LOCKS_REQUIRED(d.mu)
func (d *Dir) child(name string) (Inode, bool) {
	c, ok := d.children[name]
	return c, ok
}

// nameOf returns the name by which child is bound under d, or "" if it is
// not (in fact) a child of d.
//
// SHARED_LOCKS_REQUIRED(d.mu)
func (d *Dir) nameOf(child Inode) string {
	for name, c := range d.children {
		if c == child {
			return name
		}
	}
	return ""
}

// insert adds or replaces the child named name, setting its parent
// pointer and updating nFiles/nDirs.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *Dir) insert(name string, child Inode) {
	if old, ok := d.children[name]; ok {
		d.decrementCount(old)
		old.setParent(nil)
	}

	d.children[name] = child
	child.setParent(d.self)
	d.incrementCount(child)
}

// remove deletes the child named name, clearing its parent pointer. It is
// a no-op (returns false) if no such child exists.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *Dir) remove(name string) bool {
	child, ok := d.children[name]
	if !ok {
		return false
	}

	delete(d.children, name)
	d.decrementCount(child)
	child.setParent(nil)
	return true
}

func (d *Dir) incrementCount(child Inode) {
	if child.Tag() == tagDir {
		d.nDirs++
	} else {
		d.nFiles++
	}
}

func (d *Dir) decrementCount(child Inode) {
	if child.Tag() == tagDir {
		d.nDirs--
	} else {
		d.nFiles--
	}
}

// sortedNames returns the child names in a deterministic (sorted) order.
// The tree model treats child ordering as unobservable; sorting makes
// readdir output reproducible for tests.
//
// SHARED_LOCKS_REQUIRED(d.mu)
func (d *Dir) sortedNames() []string {
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAttr reports nlink as 2+nDirs per the directory invariant.
func (d *Dir) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fuseops.InodeAttributes{
		Nlink: uint32(2 + d.nDirs),
		Mode:  d.mode,
	}, nil
}

// readdir emits ".", "..", then each child name in sorted order.
//
// SHARED_LOCKS_REQUIRED(d.mu)
func (d *Dir) readdir() []string {
	out := make([]string, 0, len(d.children)+2)
	out = append(out, ".", "..")
	out = append(out, d.sortedNames()...)
	return out
}

// mknod accepts only S_ISSOCK modes. If name already resolves to a live
// FDSocket (the common case: functions/<fn>/fd and maps/<tbl>/fd are
// created, bound and started by load/construction, not by mknod), this is
// a readiness acknowledgement — the external tool signaling it is about to
// connect — and just flips the socket's ready flag rather than replacing
// it. Replacing it here would leak the existing socket's worker goroutine,
// listener and kernel fd, and hand back an unbound socket that can never
// become ready. Anything else existing under name is EEXIST. A name with
// no existing child falls back to inserting a fresh, unbound FDSocket.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *Dir) mknod(name string, mode os.FileMode) (Inode, error) {
	if mode&os.ModeSocket == 0 {
		return nil, syscall.EPERM
	}

	if existing, ok := d.children[name]; ok {
		sock, ok := existing.(*FDSocket)
		if !ok {
			return nil, syscall.EEXIST
		}
		sock.markReady()
		return sock, nil
	}

	s := newFDSocket(d.clock, d.logger, mode)
	d.insert(name, s)
	return s, nil
}

// unlink requires the named child to exist and to carry the owner-write
// permission bit, then asks it for its own unlink side effect (e.g. a
// kernel map delete) before unconditionally removing it from the tree.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *Dir) unlink(name string) error {
	child, ok := d.children[name]
	if !ok {
		return syscall.ENOENT
	}

	if child.Mode()&0o200 == 0 {
		return syscall.EPERM
	}

	var sideEffectErr error
	if u, ok := child.(unlinker); ok {
		sideEffectErr = u.unlinkSelf()
	}

	d.remove(name)
	return sideEffectErr
}

// RootDir is the mount root. Its only mutating operation is mkdir, which
// creates an empty program. scratchDir is where fd-socket children of
// every program beneath it bind their Unix-domain sockets.
type RootDir struct {
	Dir

	scratchDir string
}

func newRootDir(clock timeutil.Clock, logger *log.Logger, scratchDir string) *RootDir {
	r := &RootDir{Dir: *newDir(0o755, clock, logger), scratchDir: scratchDir}
	r.self = r
	return r
}

// Mkdir creates a fresh ProgramDir named name. Returns EEXIST if the name
// is already bound.
//
// EXCLUSIVE_LOCKS_REQUIRED(r.mu)
func (r *RootDir) Mkdir(name string) (*ProgramDir, error) {
	if _, ok := r.children[name]; ok {
		return nil, syscall.EEXIST
	}

	p := newProgramDir(r.clock, r.logger, r.scratchDir)
	r.insert(name, p)
	return p, nil
}
