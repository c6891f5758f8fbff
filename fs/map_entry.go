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

	"github.com/iovisor/bpffs/internal/bpf"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// MapEntry is maps/<table>/<key>: one kernel map entry, presented as a
// file whose content is the leaf's canonical text form. Opening refreshes
// from the kernel first, so a concurrently-updated entry is never stale
// for more than the duration of one open.
type MapEntry struct {
	StringFile

	table *bpf.Table
	key   []byte
}

// newMapEntry constructs an entry bound to an existing key and performs
// the initial Lookup, so the file is born with the leaf's current value
// rather than empty.
func newMapEntry(table *bpf.Table, key []byte, clock timeutil.Clock) (*MapEntry, error) {
	e := &MapEntry{
		StringFile: StringFile{base: base{clock: clock, kind: tagFile, mode: 0o644}},
		table:      table,
		key:        append([]byte(nil), key...),
	}
	if err := e.refresh(); err != nil {
		return nil, err
	}
	return e, nil
}

// newBareMapEntry constructs an entry for a key that does not yet exist in
// the kernel map (the result of a create(2) on maps/<table>/), with an
// empty buffer and nothing to refresh from.
func newBareMapEntry(table *bpf.Table, key []byte, clock timeutil.Clock) *MapEntry {
	return &MapEntry{
		StringFile: StringFile{base: base{clock: clock, kind: tagFile, mode: 0o644}},
		table:      table,
		key:        append([]byte(nil), key...),
	}
}

// refresh re-reads the current leaf from the kernel map into the buffer.
// A missing key leaves the buffer untouched; the entry is reconciled away
// by MapDir's refresh pass in that case, not by this method.
//
// EXCLUSIVE_LOCKS_REQUIRED(e.mu)
func (e *MapEntry) refresh() error {
	value, ok, err := e.table.Lookup(e.key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	e.data = []byte(e.table.ValueString(value))
	e.dirty = false
	return nil
}

// open refreshes the entry before returning its current content.
//
// EXCLUSIVE_LOCKS_REQUIRED(e.mu)
func (e *MapEntry) open() error {
	return e.refresh()
}

// flush parses the buffer as a leaf value and installs it via Update,
// creating the kernel entry if it was not already present. A dirty but
// empty or bare-newline buffer is a no-op, as in SourceFile.flush, rather
// than trying to parse an empty value.
//
// EXCLUSIVE_LOCKS_REQUIRED(e.mu)
func (e *MapEntry) flush(ctx context.Context) error {
	if !e.dirty {
		return nil
	}
	e.dirty = false

	if e.isEmptyOrBareNewline() {
		return nil
	}

	value, err := e.table.ParseValue(string(e.data))
	if err != nil {
		return syscall.EIO
	}

	if err := e.table.Update(e.key, value); err != nil {
		return syscall.EIO
	}

	return nil
}

// unlinkSelf deletes the kernel map entry backing this file.
//
// EXCLUSIVE_LOCKS_REQUIRED(e.mu)
func (e *MapEntry) unlinkSelf() error {
	if err := e.table.Delete(e.key); err != nil {
		return syscall.ENOENT
	}
	return nil
}
