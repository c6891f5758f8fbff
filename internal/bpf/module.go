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

// Package bpf is the opaque BPF compiler/runtime module the fs package
// treats as an external collaborator: create-from-source, destroy,
// enumerate functions and tables, load a function with a declared program
// type, and the per-table key/value CRUD operations. It is built on
// github.com/cilium/ebpf for everything the kernel actually does (loading,
// map CRUD, fds) and on a clang subprocess for the one step cilium/ebpf
// does not perform: compiling a C-like BPF source into an ELF object.
package bpf

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cilium/ebpf"
	"golang.org/x/net/context"
)

// Function describes one BPF program found in a compiled module, before it
// has been loaded into the kernel with a declared type.
type Function struct {
	Name  string
	Index int
}

// Module is the live, in-process compilation artifact: the instruction
// buffers for every discovered function, plus one already-created kernel
// map per discovered table. It is owned by exactly one ProgramDir; the
// Function/Map-backed inodes beneath that ProgramDir hold only a
// non-owning reference, valid only so long as the ProgramDir has not
// unloaded.
type Module struct {
	spec  *ebpf.CollectionSpec
	funcs []Function

	tables   []*Table
	tableIdx map[string]int

	loaded map[int]*ebpf.Program // GUARDED_BY caller (ProgramDir.mu)
}

// CreateFromSource compiles text (a restricted-C BPF source, in BCC's
// dialect) and creates the kernel maps it declares. Programs are *not*
// loaded into the kernel here: a program's type is not known until a
// client writes it to functions/<fn>/type, so loading is deferred to
// LoadFunction. Returns nil and a descriptive error on compile failure;
// ProgramDir.Load treats the non-nil error as a failed load.
func CreateFromSource(ctx context.Context, source string) (*Module, error) {
	obj, err := compileToObject(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	defer os.Remove(obj)

	spec, err := ebpf.LoadCollectionSpec(obj)
	if err != nil {
		return nil, fmt.Errorf("load collection spec: %w", err)
	}

	m := &Module{
		spec:     spec,
		tableIdx: make(map[string]int),
		loaded:   make(map[int]*ebpf.Program),
	}

	names := make([]string, 0, len(spec.Programs))
	for name := range spec.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		m.funcs = append(m.funcs, Function{Name: name, Index: i})
	}

	for name, mapSpec := range spec.Maps {
		kmap, err := ebpf.NewMap(mapSpec)
		if err != nil {
			m.closeTables()
			return nil, fmt.Errorf("create map %s: %w", name, err)
		}

		t := newTable(name, kmap, mapSpec.KeySize, mapSpec.ValueSize)
		m.tableIdx[name] = len(m.tables)
		m.tables = append(m.tables, t)
	}

	return m, nil
}

// Functions returns the functions discovered at creation time, in a stable
// order (sorted by program name).
func (m *Module) Functions() []Function {
	return m.funcs
}

// Tables returns the live, already-created kernel maps discovered at
// creation time.
func (m *Module) Tables() []*Table {
	return m.tables
}

// LoadFunction loads function i into the kernel with the given program
// type, returning the resulting program's kernel fd on success. On
// verifier rejection it returns the verifier log text and a non-nil error;
// the caller (FunctionDir) surfaces that as the `error` file's content.
func (m *Module) LoadFunction(i int, progType ProgramType) (fd int, verifierLog string, err error) {
	fn := m.funcs[i]
	progSpec := m.spec.Programs[fn.Name]

	opts := ebpf.ProgramOptions{
		LogLevel: 1,
		LogSize:  64 * 1024,
	}

	cloned := *progSpec
	cloned.Type = ebpf.ProgramType(progType)

	prog, err := ebpf.NewProgramWithOptions(&cloned, opts)
	if err != nil {
		var ve *ebpf.VerifierError
		if errors.As(err, &ve) {
			verifierLog = strings.Join(ve.Log, "\n")
		}
		return 0, verifierLog, fmt.Errorf("prog_load %s: %w", fn.Name, err)
	}

	m.loaded[i] = prog
	return prog.FD(), "", nil
}

// UnloadFunction closes the kernel program for function i, if loaded.
func (m *Module) UnloadFunction(i int) {
	if prog, ok := m.loaded[i]; ok {
		prog.Close()
		delete(m.loaded, i)
	}
}

// Close destroys the module: every loaded program and every created map.
func (m *Module) Close() error {
	for _, prog := range m.loaded {
		prog.Close()
	}
	m.closeTables()
	return nil
}

func (m *Module) closeTables() {
	for _, t := range m.tables {
		t.close()
	}
}
