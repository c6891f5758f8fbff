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
	"net"

	"golang.org/x/sys/unix"
)

// fd-passing wire format: a single SOCK_STREAM payload of four arbitrary
// bytes, carrying exactly one SCM_RIGHTS control message with a single
// fd. The payload itself is unread by the receiver; its only purpose is
// to give recvmsg something to block on. This mirrors bcc's own
// bcc_send_fd, which sends a 4-byte placeholder alongside the control
// message.
func sendFD(conn *net.UnixConn, fd int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	rights := unix.UnixRights(fd)
	payload := []byte{0, 0, 0, 0}

	var sendErr error
	err = raw.Write(func(s uintptr) bool {
		sendErr = unix.Sendmsg(int(s), payload, rights, nil, 0)
		return sendErr != unix.EAGAIN
	})
	if err != nil {
		return err
	}
	return sendErr
}

// RecvFD connects to the Unix-domain socket at path and receives one fd
// handed across via SCM_RIGHTS, the client side of the mknod/connect
// protocol exposed by functions/<fn>/fd and maps/<table>/fd.
func RecvFD(path string) (int, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}

	payload := make([]byte, 4)
	oob := make([]byte, unix.CmsgSpace(4))

	var n, oobn int
	var recvErr error
	err = raw.Read(func(s uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(s), payload, oob, 0)
		return recvErr != unix.EAGAIN
	})
	if err != nil {
		return 0, err
	}
	if recvErr != nil {
		return 0, fmt.Errorf("recvmsg: %w", recvErr)
	}
	if n != len(payload) {
		return 0, fmt.Errorf("recvmsg: short payload read (%d bytes)", n)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, fmt.Errorf("parse control message: %w", err)
	}
	if len(msgs) != 1 {
		return 0, fmt.Errorf("recvmsg: expected 1 control message, got %d", len(msgs))
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return 0, fmt.Errorf("parse rights: %w", err)
	}
	if len(fds) != 1 {
		return 0, fmt.Errorf("recvmsg: expected 1 fd, got %d", len(fds))
	}

	return fds[0], nil
}
