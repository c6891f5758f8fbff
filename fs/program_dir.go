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

	"github.com/iovisor/bpffs/internal/bpf"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// ProgramDir is one compiled BPF program. It aggregates a nullable module
// handle plus two fixed children (source, valid); once loaded, it also
// owns functions/ and maps/.
type ProgramDir struct {
	Dir

	// GUARDED_BY(mu)
	module *bpf.Module

	source *SourceFile
	valid  *StatFile

	scratchDir string
}

func newProgramDir(clock timeutil.Clock, logger *log.Logger, scratchDir string) *ProgramDir {
	p := &ProgramDir{Dir: *newDir(0o755, clock, logger), scratchDir: scratchDir}
	p.self = p

	p.source = newSourceFile(p, clock)
	p.valid = newStatFile("0\n")

	p.insert("source", p.source)
	p.insert("valid", p.valid)

	return p
}

// Load compiles text via the BPF module library and, on success, rebuilds
// functions/ and maps/ from the resulting module. On failure it leaves
// valid at "0\n" and returns a non-nil error (the caller translates that
// to -EIO).
//
// EXCLUSIVE_LOCKS_REQUIRED(p.mu)
func (p *ProgramDir) Load(ctx context.Context, text string) error {
	mod, err := bpf.CreateFromSource(ctx, text)
	if err != nil {
		p.valid.setData("0\n")
		return fmt.Errorf("create from source: %w", err)
	}

	p.module = mod
	p.valid.setData("1\n")

	functions := newDir(0o755, p.clock, p.logger)
	for _, fn := range mod.Functions() {
		functions.insert(fn.Name, newFunctionDir(p.clock, p.logger, mod, fn.Index, p.scratchDir))
	}
	p.insert("functions", functions)

	maps := newDir(0o755, p.clock, p.logger)
	for _, t := range mod.Tables() {
		maps.insert(t.Name(), newMapDir(p.clock, p.logger, t, p.scratchDir))
	}
	p.insert("maps", maps)

	return nil
}

// Unload is idempotent and safe to call before Load. It tears down
// functions/ and maps/ (cascading destruction of every FunctionDir/MapDir
// and their fd-socket subtrees, joining worker threads and closing kernel
// fds), then destroys the module handle.
//
// EXCLUSIVE_LOCKS_REQUIRED(p.mu)
func (p *ProgramDir) Unload() {
	p.valid.setData("0\n")

	if functions, ok := p.children["functions"].(*Dir); ok {
		for _, child := range functions.children {
			if fn, ok := child.(*FunctionDir); ok {
				fn.unload()
			}
		}
	}
	p.remove("functions")

	if maps, ok := p.children["maps"].(*Dir); ok {
		for _, child := range maps.children {
			if md, ok := child.(*MapDir); ok {
				md.close()
			}
		}
	}
	p.remove("maps")

	if p.module != nil {
		p.module.Close()
		p.module = nil
	}
}
