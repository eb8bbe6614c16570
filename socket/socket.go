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

// Package socket implements the connection-endpoint object: creation
// (listen/connect), option negotiation, loopback-aware zero-copy decision,
// accept, and close. It ties together the stack binding, the receive
// cursor and the transmit batcher for one connection.
package socket

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/cloudwego/xliosock/internal/xlog"
	"github.com/cloudwego/xliosock/recvcursor"
	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/txbatch"
)

const listenBacklog = 512

// Options configures a socket at creation time. Zero values fall back to
// the package defaults.
type Options struct {
	RecvBufSize        int
	SendBufSize        int
	Priority           int // 0 means unset
	EnableZeroCopySend bool
	EnableZeroCopyRecv bool
	IPv6Only           bool
	TCPUserTimeout     int // milliseconds; 0 means unset
	ZerocopyCmsg       txbatch.CmsgConsts
	ZerocopyThresh     int
	PacketPoolSize     int
	BufferPoolSize     int
}

// Socket is one connection endpoint: descriptor, sequence counter,
// protection domain, zero-copy flags, priority, receive cursor and
// transmit batcher. It owns its pools exclusively; packets and buffers
// never migrate between sockets.
type Socket struct {
	ops stack.Ops
	ext stack.ExtAPI

	FD       int
	pdHandle uintptr
	hasPD    bool

	ZcopySendEnabled bool
	ZcopyRecvEnabled bool
	Priority         int

	PendingRecv bool // true iff this socket sits on the group's pending-receive queue

	Cursor  *recvcursor.Cursor
	Batcher *txbatch.Batcher

	closed bool
}

// ErrNoAddress is returned when address resolution yields nothing to try.
var ErrNoAddress = errors.New("socket: no candidate address resolved")

// ErrCloseWithPendingCompletions is the documented assertion violation:
// Close requires the pending-completion queue to be empty already.
var ErrCloseWithPendingCompletions = errors.New("socket: close with non-empty pending-completion queue")

func newSocket(ops stack.Ops, ext stack.ExtAPI, fd int, opts Options) *Socket {
	nPackets := opts.PacketPoolSize
	if nPackets == 0 {
		nPackets = 1024
	}
	nBuffers := opts.BufferPoolSize
	if nBuffers == 0 {
		nBuffers = 4096
	}
	return &Socket{
		ops:      ops,
		ext:      ext,
		FD:       fd,
		Priority: opts.Priority,
		Cursor:   recvcursor.New(nPackets, nBuffers),
		Batcher:  txbatch.NewBatcher(opts.EnableZeroCopySend, opts.ZerocopyThresh, opts.ZerocopyCmsg),
	}
}

// applyCommonOptions sets the socket options shared by listen and connect
// paths: buffer sizes, SO_REUSEADDR, TCP_NODELAY, optional SO_PRIORITY,
// optional IPV6_V6ONLY, optional TCP_USER_TIMEOUT.
func applyCommonOptions(ops stack.Ops, fd int, opts Options) error {
	if opts.RecvBufSize > 0 {
		if err := ops.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufSize); err != nil {
			return err
		}
	}
	if opts.SendBufSize > 0 {
		if err := ops.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufSize); err != nil {
			return err
		}
	}
	if err := ops.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if err := ops.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if opts.Priority != 0 {
		_ = ops.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, opts.Priority)
	}
	if opts.IPv6Only {
		_ = ops.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
	}
	if opts.TCPUserTimeout > 0 {
		_ = ops.SetsockoptInt(fd, unix.IPPROTO_TCP, tcpUserTimeout, opts.TCPUserTimeout)
	}
	return nil
}

// tcpUserTimeout mirrors TCP_USER_TIMEOUT, which golang.org/x/sys/unix
// does not export as a named constant on every architecture.
const tcpUserTimeout = 0x12

func isRetriableCreateErr(err error) bool {
	return errors.Is(err, unix.EADDRINUSE) || errors.Is(err, unix.EADDRNOTAVAIL) || errors.Is(err, unix.EPROTONOSUPPORT)
}

// Listen resolves addr (host, service already numeric) and, for each
// candidate address, opens a descriptor, applies common options, binds and
// listens with a fixed backlog, then sets non-blocking. The first address
// that fully succeeds wins; bind-EINTR is retried on the same address.
func Listen(ops stack.Ops, ext stack.ExtAPI, addr string, opts Options) (*Socket, error) {
	host, service, err := SplitHostService(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := ops.Resolve(host, service, true)
	if err != nil || len(addrs) == 0 {
		return nil, ErrNoAddress
	}

	var lastErr error
	for _, a := range addrs {
		fd, err := openAndConfigure(ops, a, opts)
		if err != nil {
			lastErr = err
			continue
		}
		if err := bindRetryingEINTR(ops, fd, a); err != nil {
			_ = ops.Close(fd)
			lastErr = err
			continue
		}
		if err := ops.Listen(fd, listenBacklog); err != nil {
			_ = ops.Close(fd)
			lastErr = err
			continue
		}
		if err := ops.SetNonblock(fd, true); err != nil {
			_ = ops.Close(fd)
			lastErr = err
			continue
		}
		s := newSocket(ops, ext, fd, opts)
		s.finishZerocopyDecision(ext, a, opts, true)
		return s, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoAddress
}

// Connect resolves addr and connects to the first candidate that succeeds.
func Connect(ops stack.Ops, ext stack.ExtAPI, addr string, opts Options) (*Socket, error) {
	host, service, err := SplitHostService(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := ops.Resolve(host, service, false)
	if err != nil || len(addrs) == 0 {
		return nil, ErrNoAddress
	}

	var lastErr error
	for _, a := range addrs {
		fd, err := openAndConfigure(ops, a, opts)
		if err != nil {
			lastErr = err
			continue
		}
		if err := ops.Connect(fd, a); err != nil && !errors.Is(err, unix.EINPROGRESS) {
			_ = ops.Close(fd)
			lastErr = err
			continue
		}
		if err := ops.SetNonblock(fd, true); err != nil {
			_ = ops.Close(fd)
			lastErr = err
			continue
		}
		s := newSocket(ops, ext, fd, opts)
		local := a
		if la, err := ops.GetLocalAddr(fd); err == nil && la != nil {
			local = la
		}
		s.finishZerocopyDecision(ext, local, opts, false)
		return s, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoAddress
}

func openAndConfigure(ops stack.Ops, a net.Addr, opts Options) (int, error) {
	domain := unix.AF_INET
	if ta, ok := a.(*net.TCPAddr); ok && ta.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := ops.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := applyCommonOptions(ops, fd, opts); err != nil {
		_ = ops.Close(fd)
		return -1, err
	}
	return fd, nil
}

func bindRetryingEINTR(ops stack.Ops, fd int, a net.Addr) error {
	for {
		err := ops.Bind(fd, a)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

// finishZerocopyDecision enables zero-copy send iff the caller requested
// it, the per-role switch is on, and the bound local address is not on a
// loopback interface. Zero-copy receive is independent of the send
// decision and of the loopback check. The protection-domain handle is
// queried for non-listen sockets only; failure there is non-fatal.
func (s *Socket) finishZerocopyDecision(ext stack.ExtAPI, local net.Addr, opts Options, isListener bool) {
	wantSend := opts.EnableZeroCopySend
	if wantSend && IsLoopbackAddr(local) {
		wantSend = false
	}
	if wantSend {
		if err := s.ops.SetsockoptInt(s.FD, unix.SOL_SOCKET, soZerocopy, 1); err == nil {
			s.ZcopySendEnabled = true
			s.Batcher.ZerocopyEnabled = true
		}
	}
	s.ZcopyRecvEnabled = opts.EnableZeroCopyRecv

	if !isListener && ext != nil {
		if pd, ok := ext.ProtectionDomain(s.FD); ok {
			s.pdHandle = pd
			s.hasPD = true
		}
	}
}

// soZerocopy mirrors SO_ZEROCOPY (value 60 on Linux).
const soZerocopy = 60

// Accept returns a newly allocated socket inheriting the parent's
// zero-copy flag and priority (priority must be re-applied: it is not
// inherited by the kernel).
func (s *Socket) Accept(opts Options) (*Socket, error) {
	fd, peer, err := s.ops.Accept(s.FD)
	if err != nil {
		return nil, err
	}
	child := newSocket(s.ops, s.ext, fd, opts)
	child.ZcopySendEnabled = s.ZcopySendEnabled
	child.ZcopyRecvEnabled = s.ZcopyRecvEnabled
	child.Batcher.ZerocopyEnabled = s.ZcopySendEnabled
	child.Priority = s.Priority
	if s.Priority != 0 {
		_ = s.ops.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, s.Priority)
	}
	if err := s.ops.SetNonblock(fd, true); err != nil {
		_ = s.ops.Close(fd)
		return nil, err
	}
	if s.ext != nil {
		if pd, ok := s.ext.ProtectionDomain(fd); ok {
			child.pdHandle = pd
			child.hasPD = true
		}
	}
	_ = peer
	return child, nil
}

// ProtectionDomain returns the socket's protection-domain handle, if one
// was acquired.
func (s *Socket) ProtectionDomain() (uintptr, bool) { return s.pdHandle, s.hasPD }

// Close checks the packet at the head of the received-packet queue: a
// refcount above 1 means the application holds outstanding buffer views,
// which is reported through onLeakedRefs (or logged when it is nil), is not
// fatal, and leaves those views dangling. Packets still queued are neither
// released to the stack nor returned to the pool. The pending-completion
// queue must already
// be empty; violating that is a caller bug and is asserted here as an
// error rather than a panic, matching a robustness-leaning interpretation
// of the source's assertion.
func (s *Socket) Close(onLeakedRefs func(refcount int)) error {
	if s.closed {
		return nil
	}
	if rc := s.Cursor.HeadRefcount(); rc > 1 {
		if onLeakedRefs != nil {
			onLeakedRefs(rc)
		} else {
			xlog.Errorf("socket: closing fd %d with %d outstanding buffer views", s.FD, rc-1)
		}
	}
	if s.Batcher.Pending.Len() != 0 {
		return ErrCloseWithPendingCompletions
	}
	s.closed = true
	return s.ops.Close(s.FD)
}
