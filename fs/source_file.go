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
	"syscall"

	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// SourceFile is program/source: the editable buffer holding BPF C source.
// Flushing a dirty, non-empty buffer (re)compiles the owning program.
type SourceFile struct {
	StringFile

	parent *ProgramDir
}

func newSourceFile(parent *ProgramDir, clock timeutil.Clock) *SourceFile {
	return &SourceFile{
		StringFile: StringFile{base: base{clock: clock, kind: tagFile, mode: 0o644}},
		parent:     parent,
	}
}

// truncate additionally unloads the owning program immediately, so that a
// client who truncates source to clear it out sees functions/ and maps/
// disappear without waiting for a subsequent flush.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *SourceFile) truncate(size int64) {
	f.StringFile.truncate(size)
	f.parent.Unload()
}

// flush recompiles the owning program if the buffer is dirty and holds
// real content. An empty or bare-newline buffer is a no-op: it neither
// compiles nor unloads (tearing a program down is truncate's job).
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *SourceFile) flush(ctx context.Context) error {
	if !f.dirty {
		return nil
	}
	f.dirty = false

	if f.isEmptyOrBareNewline() {
		return nil
	}

	f.parent.Unload()

	if err := f.parent.Load(ctx, string(f.data)); err != nil {
		return syscall.EIO
	}
	return nil
}
