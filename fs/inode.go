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

// Package fs is the in-memory filesystem tree that backs a BPF-lifecycle
// FUSE mount: the inode hierarchy, the per-inode state machines binding VFS
// operations to BPF compile/load/attach/teardown, the fd-passing socket
// inodes, and the mount dispatcher that translates FUSE callbacks into tree
// walks.
package fs

import (
	"os"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// tag is the closed set of inode variants. There is no open inheritance
// hierarchy here: the dispatcher type-switches on the concrete Go type, and
// tag exists only to answer the coarse "what kind of thing is this" queries
// the spec's errno taxonomy needs (readdir on a non-dir, write on a
// non-file, and so on).
type tag int

const (
	tagDir tag = iota
	tagFile
	tagLink
	tagSock
)

func (t tag) String() string {
	switch t {
	case tagDir:
		return "dir"
	case tagFile:
		return "file"
	case tagLink:
		return "link"
	case tagSock:
		return "sock"
	default:
		return "unknown"
	}
}

// Inode is implemented by every node in the tree: Dir, the file variants,
// Link and FDSocket. Methods require base.mu to be held unless documented
// otherwise; GetAttr acquires it itself.
type Inode interface {
	// Tag does not require the lock to be held.
	Tag() tag

	// Mode does not require the lock to be held.
	Mode() os.FileMode

	// Parent does not require the lock to be held. Returns nil at the root.
	Parent() Inode

	setParent(in Inode)

	// GetAttr returns up to date attributes for this inode. Locks internally.
	GetAttr(ctx context.Context) (fuseops.InodeAttributes, error)

	// Lock and Unlock guard the variant's mutable state, letting the
	// dispatcher serialize operations on an inode without knowing its
	// concrete type.
	Lock()
	Unlock()
}

// base holds the fields common to every inode variant: the closed-set tag,
// POSIX mode bits, a non-owning back-reference to the parent directory
// (nil only at the root), and the lock that guards the variant's mutable
// state. The back-reference is never used for ownership, only for queries
// ("is my parent a ProgramDir" checks); the parent directory owns its
// children strongly via its children map.
type base struct {
	mu     syncutil.InvariantMutex
	clock  timeutil.Clock
	kind   tag
	mode   os.FileMode
	parent Inode
}

func (b *base) Tag() tag           { return b.kind }
func (b *base) Mode() os.FileMode  { return b.mode }
func (b *base) Parent() Inode      { return b.parent }
func (b *base) setParent(in Inode) { b.parent = in }
func (b *base) Lock()              { b.mu.Lock() }
func (b *base) Unlock()            { b.mu.Unlock() }
