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
	"path/filepath"
	"time"

	"github.com/iovisor/bpffs/internal/bpf"
	"github.com/jacobsa/timeutil"
)

// refreshInterval bounds how often MapDir re-walks the kernel map to
// reconcile its children against live keys. Listing the directory more
// often than this returns the previous reconciliation's view rather than
// paying for another full table walk.
const refreshInterval = time.Second

// MapDir is maps/<table>: a fixed fd child plus a dump file, and a set of
// MapEntry children kept in sync with the kernel map's actual keys. Sync
// happens lazily, at most once per refreshInterval, on readdir/lookup.
type MapDir struct {
	Dir

	table *bpf.Table

	// GUARDED_BY(mu)
	lastRefresh time.Time

	scratchDir string
}

func newMapDir(clock timeutil.Clock, logger *log.Logger, table *bpf.Table, scratchDir string) *MapDir {
	d := &MapDir{Dir: *newDir(0o755, clock, logger), table: table, scratchDir: scratchDir}
	d.self = d

	sock := newFDSocket(clock, logger, 0o600)
	if scratchDir != "" {
		sock.bind(filepath.Join(scratchDir, "map-"+table.Name()+".sock"), table.FD())
	}
	d.insert("fd", sock)
	d.insert("dump", newMapDumpFile(table))

	d.refresh()
	return d
}

// refresh reconciles the entry children against the kernel map's current
// keys: existing entries are re-looked-up in place (preserving identity
// for any open file handle), stale entries whose key vanished from the
// kernel are dropped, and newly-appeared keys get a fresh MapEntry. It is
// a no-op if called again within refreshInterval of the last call.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *MapDir) refresh() error {
	now := d.clock.Now()
	if !d.lastRefresh.IsZero() && now.Sub(d.lastRefresh) < refreshInterval {
		return nil
	}
	d.lastRefresh = now

	live := make(map[string][]byte)

	var cur []byte
	for {
		next, ok, err := d.table.NextKey(cur)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		live[d.table.KeyString(next)] = next
		cur = next
	}

	for name, child := range d.children {
		if name == "fd" || name == "dump" {
			continue
		}
		entry, ok := child.(*MapEntry)
		if !ok {
			continue
		}

		if _, stillLive := live[name]; !stillLive {
			d.remove(name)
			continue
		}

		entry.mu.Lock()
		entry.refresh()
		entry.mu.Unlock()
		delete(live, name)
	}

	for name, key := range live {
		entry, err := newMapEntry(d.table, key, d.clock)
		if err != nil {
			continue
		}
		d.insert(name, entry)
	}

	return nil
}

// close shuts down the fd-socket child. Called when the owning program is
// unloaded and this MapDir is about to be dropped from the tree.
func (d *MapDir) close() {
	if sock, ok := d.children["fd"].(*FDSocket); ok {
		sock.Close()
	}
}

// create makes a born-empty MapEntry for a key not yet present in the
// kernel map; the entry becomes real once its content is written and
// flushed.
//
// EXCLUSIVE_LOCKS_REQUIRED(d.mu)
func (d *MapDir) create(name string) (*MapEntry, error) {
	key, err := d.table.ParseKey(name)
	if err != nil {
		return nil, err
	}

	entry := newBareMapEntry(d.table, key, d.clock)
	d.insert(d.table.KeyString(key), entry)
	return entry, nil
}
