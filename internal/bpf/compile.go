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
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/net/context"
)

// clangPath is overridable in tests.
var clangPath = "clang"

// compileToObject shells out to clang to compile a restricted-C BPF source
// into an ELF object suitable for ebpf.LoadCollectionSpec. The real BCC
// compiler front-end is LLVM-based and explicitly out of scope for this
// filesystem (spec.md section 1); this is the minimal real-world
// equivalent of "create-from-source" built from a tool in the ecosystem
// rather than a reimplemented compiler.
func compileToObject(ctx context.Context, source string) (path string, err error) {
	srcFile, err := os.CreateTemp("", "bpffs-*.c")
	if err != nil {
		return "", fmt.Errorf("create temp source: %w", err)
	}
	defer os.Remove(srcFile.Name())

	if _, err := srcFile.WriteString(source); err != nil {
		srcFile.Close()
		return "", fmt.Errorf("write temp source: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return "", fmt.Errorf("close temp source: %w", err)
	}

	objFile, err := os.CreateTemp("", "bpffs-*.o")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	objPath := objFile.Name()
	objFile.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, clangPath,
		"-target", "bpf",
		"-O2",
		"-g",
		"-Wall",
		"-c", srcFile.Name(),
		"-o", objPath,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(objPath)
		return "", fmt.Errorf("clang: %w: %s", err, stderr.String())
	}

	return objPath, nil
}
