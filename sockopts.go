/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package xliosock

import (
	"golang.org/x/sys/unix"

	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/stack"
)

// minRecvBuf and minSendBuf are the enforced floors for SO_RCVBUF /
// SO_SNDBUF set via SetRecvBufSize / SetSendBufSize.
const (
	minRecvBuf = 2048
	minSendBuf = 2048
)

// socketHandle pairs a *socket.Socket's underlying stack.Ops with its fd;
// these helpers take the stack.Ops/fd pair directly so they stay decoupled from
// socket's internal fields.
type socketHandle struct {
	ops stack.Ops
	fd  int
}

// Handle returns the low-level accessor for s, used by the Get/Set helpers
// below.
func Handle(ops stack.Ops, s *socket.Socket) socketHandle {
	return socketHandle{ops: ops, fd: s.FD}
}

func (h socketHandle) RecvBufSize() (int, error) {
	return h.ops.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
}

func (h socketHandle) SetRecvBufSize(n int) error {
	if n < minRecvBuf {
		n = minRecvBuf
	}
	return h.ops.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func (h socketHandle) SendBufSize() (int, error) {
	return h.ops.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
}

func (h socketHandle) SetSendBufSize(n int) error {
	if n < minSendBuf {
		n = minSendBuf
	}
	return h.ops.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

func (h socketHandle) RecvLowAt() (int, error) {
	return h.ops.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_RCVLOWAT)
}

func (h socketHandle) SetRecvLowAt(n int) error {
	return h.ops.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_RCVLOWAT, n)
}

func (h socketHandle) Priority() (int, error) {
	return h.ops.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_PRIORITY)
}

func (h socketHandle) SetPriority(n int) error {
	return h.ops.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_PRIORITY, n)
}
