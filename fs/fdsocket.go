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
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// FDSocket is a node carrying a kernel fd (a loaded program or a map) out
// of the filesystem: a client mknod(2)s a socket at a path under
// functions/<fn>/ or maps/<table>/, then connects to the node's scratch
// socket and receives the fd over SCM_RIGHTS. Until that mknod
// acknowledgement, stat reports ENOENT.
type FDSocket struct {
	base

	fd     int
	logger *log.Logger

	// GUARDED_BY(mu)
	ready bool

	scratchPath string
	listener    *net.UnixListener
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// newFDSocket constructs a not-yet-ready socket node. The caller
// (FunctionDir.load, newMapDir) is responsible for binding it to a live fd
// and starting its worker via bind; a socket created by Dir.mknod is never
// bound. logger may be nil, in which case worker failures are discarded.
func newFDSocket(clock timeutil.Clock, logger *log.Logger, mode os.FileMode) *FDSocket {
	return &FDSocket{
		base:   base{clock: clock, kind: tagSock, mode: mode},
		logger: logger,
	}
}

// bind attaches fd to the socket node and spawns the worker goroutine that
// accepts exactly one connection at scratchPath and hands fd across it via
// SCM_RIGHTS, then exits. It does not touch the ready flag.
func (s *FDSocket) bind(scratchPath string, fd int) error {
	s.fd = fd
	s.scratchPath = scratchPath

	os.Remove(scratchPath)
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: scratchPath, Net: "unix"})
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go s.serve()
	return nil
}

// serve accepts exactly one connection at scratchPath and hands s.fd
// across it via SCM_RIGHTS. Per the error-handling design, a worker
// failure is logged but never propagated to a VFS caller: the socket
// simply stays in the tree and continues reporting whatever its ready
// flag says.
func (s *FDSocket) serve() {
	defer s.wg.Done()

	conn, err := s.listener.Accept()
	if err != nil {
		s.logf("accept on %s: %v", s.scratchPath, err)
		return
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		s.logf("connection on %s was not a unix socket", s.scratchPath)
		return
	}

	if err := sendFD(unixConn, s.fd); err != nil {
		s.logf("send fd over %s: %v", s.scratchPath, err)
		return
	}
}

func (s *FDSocket) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// markReady flips the ready flag. Called by the dispatcher's mknod
// special case when a client signals it is about to connect; the worker
// itself never sets this, since it may still be blocked in Accept when
// mknod runs.
func (s *FDSocket) markReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// GetAttr reports ENOENT until markReady has run, so a client polling
// stat() sees the node appear only after its mknod acknowledgement.
func (s *FDSocket) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fuseops.InodeAttributes{}, syscall.ENOENT
	}

	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  s.mode,
	}, nil
}

// unlinkSelf closes the socket when a client removes it from the tree
// directly (rather than it being torn down as a side effect of the owning
// function/map being unloaded).
func (s *FDSocket) unlinkSelf() error {
	s.Close()
	return nil
}

// Close shuts the listener down, closes the owned fd, and waits for the
// worker to exit. Safe to call on a socket that was never successfully
// bound.
func (s *FDSocket) Close() {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		if s.scratchPath != "" {
			os.Remove(s.scratchPath)
		}
		if s.fd != 0 {
			syscall.Close(s.fd)
		}
	})
}
