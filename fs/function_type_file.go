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
	"strings"
	"syscall"

	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// FunctionTypeFile is functions/<fn>/type: writing one of the four
// accepted program type names loads that function into the kernel with
// the declared type.
type FunctionTypeFile struct {
	StringFile

	parent *FunctionDir
}

func newFunctionTypeFile(parent *FunctionDir, clock timeutil.Clock) *FunctionTypeFile {
	return &FunctionTypeFile{
		StringFile: StringFile{base: base{clock: clock, kind: tagFile, mode: 0o644}},
		parent:     parent,
	}
}

// flush parses the buffer as a program type name and asks the owning
// FunctionDir to load the function. An empty or bare-newline buffer
// unloads the function instead.
//
// EXCLUSIVE_LOCKS_REQUIRED(f.mu)
func (f *FunctionTypeFile) flush(ctx context.Context) error {
	if !f.dirty {
		return nil
	}
	f.dirty = false

	if f.isEmptyOrBareNewline() {
		f.parent.unload()
		return nil
	}

	typeName := strings.TrimSpace(string(f.data))
	if err := f.parent.load(typeName); err != nil {
		return syscall.EIO
	}
	return nil
}
