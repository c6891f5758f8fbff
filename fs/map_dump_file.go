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
	"strings"

	"github.com/iovisor/bpffs/internal/bpf"
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/net/context"
)

// dumpFileSize is the reported size of maps/<table>/dump. The file's
// actual content is regenerated on every read from the live kernel map,
// so this is a nominal figure a reader can rely on for a single
// full-file read, not a byte-accurate accounting of the formatted text.
const dumpFileSize = 4096

// MapDumpFile is maps/<table>/dump: a read-only, regenerated-on-every-read
// listing of "<key> <leaf>" lines for every entry currently in the kernel
// map, in enumeration order.
type MapDumpFile struct {
	base

	table *bpf.Table
}

func newMapDumpFile(table *bpf.Table) *MapDumpFile {
	return &MapDumpFile{
		base:  base{kind: tagFile, mode: 0o444},
		table: table,
	}
}

// read builds a fresh dump buffer and returns the window [offset,
// offset+size) of it. The map is walked with NextKey/Lookup each call, so
// concurrent kernel mutation is visible on the next read but never torn
// mid-line.
func (f *MapDumpFile) read(offset int64, size int) ([]byte, error) {
	buf, err := f.render()
	if err != nil {
		return nil, err
	}

	if offset < 0 || offset >= int64(len(buf)) {
		return nil, nil
	}

	end := offset + int64(size)
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}

	return buf[offset:end], nil
}

func (f *MapDumpFile) render() ([]byte, error) {
	var sb strings.Builder

	var cur []byte
	for {
		next, ok, err := f.table.NextKey(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		value, ok, err := f.table.Lookup(next)
		if err != nil {
			return nil, err
		}
		if ok {
			fmt.Fprintf(&sb, "%s %s\n", f.table.KeyString(next), f.table.ValueString(value))
		}

		cur = next
	}

	return []byte(sb.String()), nil
}

func (f *MapDumpFile) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  f.mode,
		Size:  dumpFileSize,
	}, nil
}
