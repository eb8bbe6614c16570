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

package socket

import (
	"golang.org/x/sys/unix"

	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/wire"
)

// Sender adapts this socket's descriptor to txbatch.Sender.
type Sender struct {
	ops stack.Ops
	fd  int
}

func (s Sender) SendmsgIov(iovs []wire.Iovec, control []byte, flags int) (int, error) {
	return s.ops.SendmsgIov(s.fd, iovs, control, flags)
}

// Sender returns an adapter usable with txbatch.Batcher.Flush.
func (s *Socket) Sender() Sender { return Sender{ops: s.ops, fd: s.FD} }

// ErrQueueReader adapts this socket's descriptor to zcreaper.ErrQueueReader.
type ErrQueueReader struct {
	ops stack.Ops
	fd  int
}

func (r ErrQueueReader) RecvErrQueue(control []byte) ([]byte, error) {
	return r.ops.RecvErrQueue(r.fd, control)
}

// ErrQueueReader returns an adapter usable with zcreaper.Reaper.Drain.
func (s *Socket) ErrQueueReader() ErrQueueReader { return ErrQueueReader{ops: s.ops, fd: s.FD} }

// IsAgain reports whether err is EAGAIN/EWOULDBLOCK/ENOBUFS, the "try
// later" family treated uniformly across flush, readv and the reaper.
func IsAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ENOBUFS
}
