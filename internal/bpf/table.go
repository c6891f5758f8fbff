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

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cilium/ebpf"
)

// ProgramType mirrors the four program types the filesystem's
// functions/<fn>/type file accepts, mapped onto the kernel constants
// cilium/ebpf declares.
type ProgramType ebpf.ProgramType

const (
	ProgTypeFilter   = ProgramType(ebpf.SocketFilter)
	ProgTypeKprobe   = ProgramType(ebpf.Kprobe)
	ProgTypeSchedCLS = ProgramType(ebpf.SchedCLS)
	ProgTypeSchedAct = ProgramType(ebpf.SchedACT)
)

// ParseProgramType maps the four accepted type strings onto kernel program
// type constants. An unmatched string is reported by ok=false, with no
// side effect, per the design's FunctionDir.load contract.
func ParseProgramType(s string) (pt ProgramType, ok bool) {
	switch s {
	case "filter":
		return ProgTypeFilter, true
	case "kprobe":
		return ProgTypeKprobe, true
	case "sched_cls":
		return ProgTypeSchedCLS, true
	case "sched_act":
		return ProgTypeSchedAct, true
	default:
		return 0, false
	}
}

// Table is a live kernel map discovered when a Module was created. Key and
// value bytes are interpreted as little-endian unsigned integers for
// stringification/parsing, matching the canonical hex key names BCC uses
// for table entries (e.g. "0x2").
type Table struct {
	name      string
	m         *ebpf.Map
	keySize   uint32
	valueSize uint32
}

func newTable(name string, m *ebpf.Map, keySize, valueSize uint32) *Table {
	return &Table{name: name, m: m, keySize: keySize, valueSize: valueSize}
}

func (t *Table) Name() string    { return t.name }
func (t *Table) FD() int         { return t.m.FD() }
func (t *Table) KeySize() uint32 { return t.keySize }

func (t *Table) close() {
	t.m.Close()
}

// NextKey enumerates the table starting from the zero key. Passing nil
// begins the enumeration; ok is false once the kernel reports no further
// key (ENOENT from BPF_MAP_GET_NEXT_KEY).
func (t *Table) NextKey(cur []byte) (next []byte, ok bool, err error) {
	if cur == nil {
		cur = make([]byte, t.keySize)
	}

	next = make([]byte, t.keySize)
	if err := t.m.NextKey(cur, &next); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return next, true, nil
}

// Lookup returns the leaf bytes for key, or ok=false if absent.
func (t *Table) Lookup(key []byte) (value []byte, ok bool, err error) {
	value = make([]byte, t.valueSize)
	if err := t.m.Lookup(key, &value); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Update installs value for key, creating the entry if absent.
func (t *Table) Update(key, value []byte) error {
	return t.m.Update(key, value, ebpf.UpdateAny)
}

// Delete removes key. Returns an error (including ebpf.ErrKeyNotExist) if
// it was absent.
func (t *Table) Delete(key []byte) error {
	return t.m.Delete(key)
}

// KeyString returns the canonical textual form of a key: its bytes
// interpreted as a little-endian unsigned integer, formatted as hex.
func (t *Table) KeyString(key []byte) string {
	return hexString(key)
}

// ValueString returns the canonical textual form of a leaf.
func (t *Table) ValueString(value []byte) string {
	return hexString(value)
}

// ParseKey parses text (as produced by KeyString, or any 0x/decimal
// integer literal) into a key-sized little-endian byte buffer.
func (t *Table) ParseKey(s string) ([]byte, error) {
	return parseToSize(s, int(t.keySize))
}

// ParseValue parses text into a value-sized little-endian byte buffer.
func (t *Table) ParseValue(s string) ([]byte, error) {
	return parseToSize(s, int(t.valueSize))
}

func hexString(b []byte) string {
	buf := make([]byte, 8)
	copy(buf, b)
	v := binary.LittleEndian.Uint64(buf)
	return fmt.Sprintf("0x%x", v)
}

func parseToSize(s string, size int) ([]byte, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}

	buf := make([]byte, max(size, 8))
	binary.LittleEndian.PutUint64(buf, v)
	return buf[:size], nil
}
