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
	"fmt"
	"log"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// flusher is implemented by every writable file variant (SourceFile,
// FunctionTypeFile, MapEntry): FlushFile dispatches to it uniformly
// rather than type-switching three times over.
type flusher interface {
	flush(ctx context.Context) error
}

// Mount is the fuseutil.FileSystem implementation: it holds the
// fuseops.InodeID <-> Inode table layered on top of the tree (root,
// programs, functions, maps) and translates each VFS callback into a
// lookup by ID, falling back to the tree only when minting a fresh ID for
// a just-discovered child.
type Mount struct {
	fuseutil.NotImplementedFileSystem

	clock  timeutil.Clock
	logger *log.Logger

	// When acquiring this lock, the caller must hold no inode locks.
	mu syncutil.InvariantMutex

	root *RootDir

	// GUARDED_BY(mu)
	inodes    map[fuseops.InodeID]Inode
	ids       map[Inode]fuseops.InodeID
	nextInode fuseops.InodeID
}

// Config bundles the construction-time knobs a CLI entrypoint gathers from
// flags.
type Config struct {
	Clock      timeutil.Clock
	Logger     *log.Logger
	ScratchDir string
}

// NewMount builds a fresh, empty tree (just the root) and its dispatcher.
func NewMount(cfg Config) *Mount {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger("bpffs: ", false)
	}

	m := &Mount{
		clock:     clock,
		logger:    logger,
		root:      newRootDir(clock, logger, cfg.ScratchDir),
		inodes:    make(map[fuseops.InodeID]Inode),
		ids:       make(map[Inode]fuseops.InodeID),
		nextInode: fuseops.RootInodeID + 1,
	}

	m.mu = syncutil.NewInvariantMutex(m.checkInvariants)
	m.inodes[fuseops.RootInodeID] = m.root
	m.ids[m.root] = fuseops.RootInodeID

	return m
}

func (m *Mount) checkInvariants() {
	if len(m.inodes) != len(m.ids) {
		panic(fmt.Sprintf("inode table skew: %d ids, %d reverse entries", len(m.inodes), len(m.ids)))
	}
	if m.inodes[fuseops.RootInodeID] == nil {
		panic("root inode missing")
	}
}

// idFor returns the stable inode ID for in, minting one on first sight.
//
// EXCLUSIVE_LOCKS_REQUIRED(m.mu)
func (m *Mount) idFor(in Inode) fuseops.InodeID {
	if id, ok := m.ids[in]; ok {
		return id
	}

	id := m.nextInode
	m.nextInode++
	m.inodes[id] = in
	m.ids[in] = id
	return id
}

// lookup resolves an InodeID to its live Inode, panicking if the kernel
// has referenced an ID we never minted (a kernel/filesystem desync that
// indicates a bug, not a client error).
//
// EXCLUSIVE_LOCKS_REQUIRED(m.mu)
func (m *Mount) lookup(id fuseops.InodeID) Inode {
	in, ok := m.inodes[id]
	if !ok {
		panic(fmt.Sprintf("unknown inode ID: %v", id))
	}
	return in
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (m *Mount) Init(op *fuseops.InitOp) error {
	return nil
}

func (m *Mount) StatFS(op *fuseops.StatFSOp) error {
	return nil
}

func (m *Mount) LookUpInode(op *fuseops.LookUpInodeOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.lookup(op.Parent).(dirLike)
	if !ok {
		return syscall.ENOTDIR
	}

	if md, ok := parent.(*MapDir); ok {
		md.Lock()
		md.refresh()
		md.Unlock()
	}

	child, ok := parent.asDir().child(op.Name)
	if !ok {
		return syscall.ENOENT
	}

	attrs, err := child.GetAttr(op.Context())
	if err != nil {
		return err
	}

	op.Entry.Child = m.idFor(child)
	op.Entry.Attributes = attrs
	return nil
}

func (m *Mount) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	attrs, err := in.GetAttr(op.Context())
	if err != nil {
		return err
	}

	op.Attributes = attrs
	return nil
}

// SetInodeAttributes holds m.mu for the duration of a truncate: SourceFile
// and FunctionTypeFile truncation unloads the owning ProgramDir/FunctionDir,
// which inserts/removes children of a directory other than in itself
// (functions/, maps/, fd, error). Releasing m.mu before that mutation would
// let a concurrent LookUpInode/ReadDir on the parent race the unload's
// map writes.
func (m *Mount) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.lookup(op.Inode)

	in.Lock()
	defer in.Unlock()

	if op.Size != nil {
		switch f := in.(type) {
		case *SourceFile:
			f.truncate(int64(*op.Size))
		case *FunctionTypeFile:
			f.truncate(int64(*op.Size))
		case *MapEntry:
			f.truncate(int64(*op.Size))
		default:
			return syscall.EINVAL
		}
	}

	attrs, err := in.GetAttr(op.Context())
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

func (m *Mount) ForgetInode(op *fuseops.ForgetInodeOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.inodes[op.ID]
	if !ok {
		return nil
	}

	delete(m.inodes, op.ID)
	delete(m.ids, in)
	return nil
}

// MkDir creates a new program directory directly beneath the root. A
// program's internal directories (functions/, maps/) are never created by
// a client mkdir(2); only the root accepts this operation.
func (m *Mount) MkDir(op *fuseops.MkDirOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lookup(op.Parent) != Inode(m.root) {
		return syscall.EPERM
	}

	child, err := m.root.Mkdir(op.Name)
	if err != nil {
		return err
	}

	attrs, err := child.GetAttr(op.Context())
	if err != nil {
		return err
	}

	op.Entry.Child = m.idFor(child)
	op.Entry.Attributes = attrs
	return nil
}

func (m *Mount) RmDir(op *fuseops.RmDirOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.lookup(op.Parent).(dirLike)
	if !ok {
		return syscall.ENOTDIR
	}
	d := parent.asDir()

	child, ok := d.child(op.Name)
	if !ok {
		return syscall.ENOENT
	}
	if child.Tag() != tagDir {
		return syscall.ENOTDIR
	}
	if _, ok := child.(*ProgramDir); ok {
		return syscall.EPERM
	}

	return d.unlink(op.Name)
}

func (m *Mount) Unlink(op *fuseops.UnlinkOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.lookup(op.Parent).(dirLike)
	if !ok {
		return syscall.ENOTDIR
	}

	return parent.asDir().unlink(op.Name)
}

func (m *Mount) MkNode(op *fuseops.MkNodeOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.lookup(op.Parent).(dirLike)
	if !ok {
		return syscall.ENOTDIR
	}

	child, err := parent.asDir().mknod(op.Name, op.Mode)
	if err != nil {
		return err
	}

	attrs, err := child.GetAttr(op.Context())
	if err != nil {
		return err
	}

	op.Entry.Child = m.idFor(child)
	op.Entry.Attributes = attrs
	return nil
}

// CreateFile only succeeds directly beneath a MapDir: create(2) on
// maps/<table>/<key> is how a client installs a brand new map entry.
// Everywhere else in the tree, file creation isn't a client operation
// (source, type and valid already exist; fd/dump are fixed), so it's
// rejected with EPERM.
func (m *Mount) CreateFile(op *fuseops.CreateFileOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.lookup(op.Parent).(*MapDir)
	if !ok {
		return syscall.EPERM
	}

	entry, err := md.create(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	attrs, err := entry.GetAttr(op.Context())
	if err != nil {
		return err
	}

	op.Entry.Child = m.idFor(entry)
	op.Entry.Attributes = attrs
	return nil
}

func (m *Mount) OpenDir(op *fuseops.OpenDirOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	if in.Tag() != tagDir {
		return syscall.ENOTDIR
	}
	return nil
}

func (m *Mount) ReadDir(op *fuseops.ReadDirOp) error {
	m.mu.Lock()
	in, ok := m.lookup(op.Inode).(dirLike)
	if !ok {
		m.mu.Unlock()
		return syscall.ENOTDIR
	}
	d := in.asDir()

	d.Lock()
	if md, ok := in.(*MapDir); ok {
		md.refresh()
	}
	names := d.readdir()

	entries := make([]fuseops.Dirent, 0, len(names))
	for i, name := range names {
		entryType := fuseutil.DT_File
		var childID fuseops.InodeID

		switch name {
		case ".":
			entryType = fuseutil.DT_Directory
			childID = m.idFor(in)
		case "..":
			entryType = fuseutil.DT_Directory
			if parent := in.Parent(); parent != nil {
				childID = m.idFor(parent)
			} else {
				childID = fuseops.RootInodeID
			}
		default:
			child, _ := d.child(name)
			if child.Tag() == tagDir {
				entryType = fuseutil.DT_Directory
			}
			childID = m.idFor(child)
		}

		entries = append(entries, fuseops.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  childID,
			Name:   name,
			Type:   entryType,
		})
	}
	d.Unlock()
	m.mu.Unlock()

	if int(op.Offset) > len(entries) {
		return syscall.EINVAL
	}

	for _, e := range entries[op.Offset:] {
		op.Data = fuseutil.AppendDirent(op.Data, e)
		if len(op.Data) > op.Size {
			op.Data = op.Data[:op.Size]
			break
		}
	}

	return nil
}

func (m *Mount) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (m *Mount) OpenFile(op *fuseops.OpenFileOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	in.Lock()
	defer in.Unlock()

	switch f := in.(type) {
	case *MapEntry:
		return f.open()
	case *SourceFile, *FunctionTypeFile, *StatFile, *MapDumpFile:
		return nil
	default:
		return syscall.EINVAL
	}
}

func (m *Mount) ReadFile(op *fuseops.ReadFileOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	in.Lock()
	defer in.Unlock()

	var data []byte
	switch f := in.(type) {
	case *SourceFile:
		data = f.readAt(op.Offset, op.Size)
	case *FunctionTypeFile:
		data = f.readAt(op.Offset, op.Size)
	case *MapEntry:
		data = f.readAt(op.Offset, op.Size)
	case *StatFile:
		data = f.readAt(op.Offset, op.Size)
	case *MapDumpFile:
		var err error
		data, err = f.read(op.Offset, op.Size)
		if err != nil {
			return syscall.EIO
		}
	default:
		return syscall.EINVAL
	}

	op.Data = data
	return nil
}

func (m *Mount) WriteFile(op *fuseops.WriteFileOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	in.Lock()
	defer in.Unlock()

	switch f := in.(type) {
	case *SourceFile:
		f.writeAt(op.Offset, op.Data)
	case *FunctionTypeFile:
		f.writeAt(op.Offset, op.Data)
	case *MapEntry:
		f.writeAt(op.Offset, op.Data)
	default:
		return syscall.EPERM
	}

	return nil
}

// FlushFile holds m.mu for the duration of the flush: SourceFile.flush and
// FunctionTypeFile.flush call parent.Load/Unload, which insert/remove
// children of the parent ProgramDir/FunctionDir (functions/, maps/, fd,
// error). Those mutations must be serialized against every other op that
// reads a directory's child set (LookUpInode, ReadDir), which also acquire
// m.mu; releasing it here before calling into flush would let a concurrent
// reader observe the child map mid-mutation.
func (m *Mount) FlushFile(op *fuseops.FlushFileOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.lookup(op.Inode)

	f, ok := in.(flusher)
	if !ok {
		return nil
	}

	in.Lock()
	defer in.Unlock()

	return f.flush(op.Context())
}

func (m *Mount) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (m *Mount) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	m.mu.Lock()
	in := m.lookup(op.Inode)
	m.mu.Unlock()

	link, ok := in.(*Link)
	if !ok {
		return syscall.EINVAL
	}

	op.Target = link.Readlink()
	return nil
}

// Mount opens the FUSE kernel connection at mountPoint and serves it with
// m until Join returns.
func Mount(mountPoint string, m *Mount, cfg *fuse.MountConfig) (*fuse.MountedFileSystem, error) {
	if cfg == nil {
		cfg = &fuse.MountConfig{}
	}
	cfg.ErrorLogger = m.logger

	server := fuseutil.NewFileSystemServer(m)

	mfs, err := fuse.Mount(mountPoint, server, cfg)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	return mfs, nil
}
