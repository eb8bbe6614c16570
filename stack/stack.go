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

// Package stack is the capability boundary between the provider and the
// kernel-bypass transport library. The library is loaded at runtime from a
// path named by an environment variable and exposes its socket primitives
// and extended zero-copy API as plain function pointers resolved by symbol
// name; nothing here assumes a particular vendor, so tests can substitute
// Fake for the real dlopen-backed binding.
package stack

import (
	"errors"
	"net"

	"github.com/cloudwego/xliosock/wire"
)

// ErrNotConfigured is returned by Load when the path environment variable
// is unset, meaning the provider must decline to register itself.
var ErrNotConfigured = errors.New("stack: path environment variable not set, provider disabled")

// ErrAPIUnavailable is returned when the extended zero-copy API cannot be
// obtained from the loaded library.
var ErrAPIUnavailable = errors.New("stack: extended API unavailable")

// Event is a readiness-descriptor event: a socket (identified by the value
// given to EpollCtl) paired with the condition(s) observed.
type Event struct {
	Ptr      uintptr // opaque value supplied at EpollCtl(EpollAdd)
	Readable bool
	Error    bool
}

// Ops is the function table of socket primitives the provider needs. A real
// implementation resolves every field by dlsym against the loaded module;
// Fake implements it in memory for tests.
type Ops interface {
	Socket(domain, typ, proto int) (fd int, err error)
	Bind(fd int, addr net.Addr) error
	Listen(fd, backlog int) error
	Connect(fd int, addr net.Addr) error
	Accept(fd int) (newfd int, peer net.Addr, err error)
	Close(fd int) error

	Readv(fd int, bufs [][]byte) (int, error)
	Writev(fd int, bufs [][]byte) (int, error)
	Recv(fd int, buf []byte, flags int) (int, error)
	SendmsgIov(fd int, iovs []wire.Iovec, control []byte, flags int) (int, error)
	RecvErrQueue(fd int, control []byte) (ctrl []byte, err error)

	EpollCreate() (int, error)
	EpollCtl(epfd int, op EpollOp, fd int, ptr uintptr) error
	EpollWait(epfd int, events []Event, timeoutMs int) (int, error)

	SetNonblock(fd int, nonblocking bool) error
	GetsockoptInt(fd, level, opt int) (int, error)
	SetsockoptInt(fd, level, opt, value int) error
	GetLocalAddr(fd int) (net.Addr, error)
	GetPeerAddr(fd int) (net.Addr, error)

	Resolve(host, service string, passive bool) ([]net.Addr, error)
}

// EpollOp selects the epoll_ctl operation.
type EpollOp int

const (
	EpollAdd EpollOp = iota
	EpollDel
)

// ExtAPI is the vendor stack's own extended entry points, obtained once via
// a sentinel getsockopt query after Ops has been resolved. It is what makes
// zero-copy receive and allocator registration possible; its absence is not
// fatal to the socket-level Ops (keys/zcopy-recv simply stay unavailable).
type ExtAPI interface {
	// RecvZcopy drains packets from fd directly into the stack's own packet
	// pool, returning an opaque per-packet handle list; the caller reads each
	// handle's Iovs and hands the handles back with ReleasePackets.
	RecvZcopy(fd int, into []byte) (n int, packets []PacketHandle, err error)
	// ReleasePackets returns packets to the stack once their refcount hits 0.
	ReleasePackets(fd int, packets []PacketHandle) error
	// RegisterAllocator installs the (alloc, free) pair the stack should use
	// for its internal buffers, via a control message ioctl.
	RegisterAllocator(alloc func(int) []byte, free func([]byte)) error
	// ProtectionDomain returns the RDMA protection-domain handle for fd, if
	// the stack exposes one (false if unavailable; never fatal).
	ProtectionDomain(fd int) (handle uintptr, ok bool)
}

// PacketHandle is an opaque per-packet identity plus its iovec set, as
// reported by RecvZcopy. PacketID is only meaningful to ReleasePackets.
type PacketHandle struct {
	PacketID uintptr
	Iovs     []wire.Iovec
}

// Binding ties a resolved Ops/ExtAPI pair to the process-wide lifecycle:
// load once, init once, teardown once. Allocations freed during or after
// Unload must be dropped on the floor since the library's own destruction order
// can't be controlled from here.
type Binding struct {
	Ops    Ops
	Ext    ExtAPI
	loaded bool
}

// Loader resolves a Binding from a library path. Neither Load in
// ops_linux.go (which takes an environment-variable name and a default
// path) nor NewFakeBinding has this signature.
type Loader func(path string) (*Binding, error)

func (b *Binding) MarkLoaded()   { b.loaded = true }
func (b *Binding) IsLoaded() bool { return b.loaded }
