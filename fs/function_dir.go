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
	"path/filepath"

	"github.com/iovisor/bpffs/internal/bpf"
	"github.com/jacobsa/timeutil"
)

// FunctionDir is functions/<fn>: a non-owning reference into the owning
// program's module (valid only until that program is unloaded), plus the
// mutable type file that drives loading, and, once loaded, either an fd
// socket or an error file.
type FunctionDir struct {
	Dir

	module *bpf.Module
	index  int

	typeFile *FunctionTypeFile

	scratchDir string
}

func newFunctionDir(clock timeutil.Clock, logger *log.Logger, module *bpf.Module, index int, scratchDir string) *FunctionDir {
	f := &FunctionDir{Dir: *newDir(0o755, clock, logger), module: module, index: index, scratchDir: scratchDir}
	f.self = f
	f.typeFile = newFunctionTypeFile(f, clock)
	f.insert("type", f.typeFile)
	return f
}

// load maps typeName to a kernel program type and loads the function. On
// verifier rejection (or an unrecognized type name) it installs an error
// file with the diagnostic text and returns a non-nil error; on success it
// replaces any stale error/fd children with a fresh fd socket.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *FunctionDir) load(typeName string) error {
	progType, ok := bpf.ParseProgramType(typeName)
	if !ok {
		f.remove("fd")
		f.insert("error", newStatFile(fmt.Sprintf("unrecognized program type %q\n", typeName)))
		return fmt.Errorf("unrecognized program type %q", typeName)
	}

	fd, verifierLog, err := f.module.LoadFunction(f.index, progType)
	if err != nil {
		f.remove("fd")
		f.insert("error", newStatFile(verifierLog+"\n"))
		return err
	}

	f.remove("error")

	sock := newFDSocket(f.clock, f.logger, 0o600)
	if f.scratchDir != "" {
		scratchPath := filepath.Join(f.scratchDir, fmt.Sprintf("fn-%d.sock", f.index))
		if err := sock.bind(scratchPath, fd); err != nil {
			return err
		}
	}
	f.insert("fd", sock)

	return nil
}

// unload tears down whatever load() produced, leaving only the type file.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *FunctionDir) unload() {
	if sock, ok := f.children["fd"].(*FDSocket); ok {
		sock.Close()
	}
	f.remove("fd")
	f.remove("error")
	f.module.UnloadFunction(f.index)
}
