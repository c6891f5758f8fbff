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
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/net/context"
)

// StringFile is a mutable byte buffer shared by every writable file variant
// (SourceFile, FunctionTypeFile, MapEntry). It is never instantiated bare;
// it is always embedded by a type that supplies its own Flush semantics.
type StringFile struct {
	base

	// GUARDED_BY(mu)
	data  []byte
	dirty bool
}

// readAt returns the window [offset, min(offset+size, len(data))).
//
// SHARED_LOCKS_REQUIRED(f.mu)
func (f *StringFile) readAt(offset int64, size int) []byte {
	if offset < 0 || offset >= int64(len(f.data)) {
		return nil
	}

	end := offset + int64(size)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}

	return f.data[offset:end]
}

// writeAt replaces [offset, offset+len(p)) in place, clamping offset to the
// current length (zero-extension) and growing the buffer as needed.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *StringFile) writeAt(offset int64, p []byte) int {
	if offset > int64(len(f.data)) {
		offset = int64(len(f.data))
	}

	end := offset + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	copy(f.data[offset:end], p)
	f.dirty = true
	return len(p)
}

// truncate resizes the buffer, zero-padding on growth.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *StringFile) truncate(size int64) {
	switch {
	case size <= int64(len(f.data)):
		f.data = f.data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.dirty = true
}

// isEmptyOrBareNewline reports whether the buffer is empty or contains
// only a trailing newline: the condition under which SourceFile and
// MapEntry treat flush as a no-op and FunctionTypeFile unloads.
//
// SHARED_LOCKS_REQUIRED(f.mu)
func (f *StringFile) isEmptyOrBareNewline() bool {
	return len(f.data) == 0 || string(f.data) == "\n"
}

// GetAttr reports the current buffer length as size.
func (f *StringFile) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  f.mode,
		Size:  uint64(len(f.data)),
	}, nil
}

// StatFile is a read-only window into an internally-managed buffer: the
// content the filesystem itself publishes (program validity, a verifier
// log), never written by a VFS client.
type StatFile struct {
	base

	// GUARDED_BY(mu)
	data []byte
}

func newStatFile(data string) *StatFile {
	return &StatFile{
		base: base{kind: tagFile, mode: 0o444},
		data: []byte(data),
	}
}

// setData replaces the published buffer, used internally to flip `valid`
// or to install a verifier-error log.
//
// EXCLUSIVE_LOCKS_REQUIRED(s.mu)
func (s *StatFile) setData(data string) {
	s.data = []byte(data)
}

// readAt returns the window [offset, min(offset+size, len(data))).
//
// SHARED_LOCKS_REQUIRED(s.mu)
func (s *StatFile) readAt(offset int64, size int) []byte {
	if offset < 0 || offset >= int64(len(s.data)) {
		return nil
	}

	end := offset + int64(size)
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}

	return s.data[offset:end]
}

func (s *StatFile) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  s.mode,
		Size:  uint64(len(s.data)),
	}, nil
}
