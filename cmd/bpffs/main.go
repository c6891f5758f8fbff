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

// Command bpffs mounts the BPF-lifecycle filesystem: a directory per
// compiled program, fed by writes to source, with loaded functions and
// live kernel maps appearing beneath it as the program becomes valid.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/iovisor/bpffs/fs"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

var (
	fMountPoint = flag.String("mount_point", "", "Path to mount point.")
	fScratchDir = flag.String("scratch_dir", "", "Directory for fd-passing Unix sockets (defaults to a fresh directory under TMPDIR).")
	fDebug      = flag.Bool("debug", false, "Write FUSE debugging messages to stderr.")
)

func main() {
	flag.Parse()

	if *fMountPoint == "" {
		log.Fatalf("You must set --mount_point.")
	}

	scratchDir := *fScratchDir
	if scratchDir == "" {
		var err error
		scratchDir, err = os.MkdirTemp("", "bpffs-")
		if err != nil {
			log.Fatalf("MkdirTemp: %v", err)
		}
		defer os.RemoveAll(scratchDir)
	}

	logger := fs.NewLogger("bpffs: ", *fDebug)

	m := fs.NewMount(fs.Config{
		Clock:      timeutil.RealClock(),
		Logger:     logger,
		ScratchDir: scratchDir,
	})

	cfg := &fuse.MountConfig{
		FSName:  "bpffs",
		Subtype: "bpffs",
	}
	if *fDebug {
		cfg.DebugLogger = logger
	}

	mfs, err := fs.Mount(*fMountPoint, m, cfg)
	if err != nil {
		log.Fatalf("Mount: %v", err)
	}

	if err := mfs.Join(context.Background()); err != nil {
		log.Fatalf("Join: %v", err)
	}
}
