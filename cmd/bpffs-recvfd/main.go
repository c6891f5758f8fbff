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

// Command bpffs-recvfd is a minimal reference client for the fd-passing
// side channel: given the path of the Unix-domain socket an fd node's
// worker listens on (under the mount's scratch directory), it connects,
// receives the fd over SCM_RIGHTS, and prints the resulting fd number. Real callers (bcc's own bcc_recv_fd)
// implement this same four-byte-payload protocol directly; this binary
// exists to exercise and demonstrate it end to end.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/iovisor/bpffs/fs"
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: bpffs-recvfd <socket-path>")
	}

	fd, err := fs.RecvFD(flag.Arg(0))
	if err != nil {
		log.Fatalf("RecvFD: %v", err)
	}

	fmt.Println(fd)
}
