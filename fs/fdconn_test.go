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
	"net"
	"os"
	"path/filepath"
	"testing"
)

// TestSendRecvFD exercises the connect/SCM_RIGHTS handoff end to end: a
// listener accepts one connection, hands a pipe's write-end fd across via
// sendFD, and a concurrent RecvFD call receives it and can write through
// the duplicated descriptor.
func TestSendRecvFD(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "fd.sock")

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	defer listener.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	serveErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serveErr <- err
			return
		}
		defer conn.Close()

		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			serveErr <- err
			return
		}

		serveErr <- sendFD(unixConn, int(w.Fd()))
	}()

	fd, err := RecvFD(sockPath)
	if err != nil {
		t.Fatalf("RecvFD: %v", err)
	}
	received := os.NewFile(uintptr(fd), "received")

	if err := <-serveErr; err != nil {
		t.Fatalf("sendFD: %v", err)
	}

	// The received descriptor is a dup of w's write end of the pipe:
	// writing through it must show up on the original read end.
	const msg = "hello"
	if _, err := received.WriteString(msg); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	received.Close()
	w.Close()

	buf := make([]byte, len(msg))
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read via original read-end failed unexpectedly: %v", err)
	}
	if string(buf) != msg {
		t.Fatalf("got %q, want %q", buf, msg)
	}
}

func TestRecvFDDialFailure(t *testing.T) {
	if _, err := RecvFD(filepath.Join(t.TempDir(), "does-not-exist.sock")); err == nil {
		t.Fatalf("expected an error dialing a nonexistent socket")
	}
}
