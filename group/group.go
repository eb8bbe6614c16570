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

// Package group implements the readiness-event multiplexer: one readiness
// descriptor shared by many sockets, a fairly rotated pending-receive
// queue, and the per-tick interleaving of transmit-flush and zero-copy
// completion processing with readiness dispatch. A Group is owned by
// exactly one goroutine; nothing here is safe for concurrent use.
package group

import (
	"unsafe"

	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/zcreaper"
)

// member is one registered socket plus its pending-receive queue link and
// the reader callback the group invokes when data is ready.
type member struct {
	sock     *socket.Socket
	callback func(*socket.Socket)

	next *member // pending-receive queue link
}

// Group multiplexes many sockets across one readiness descriptor.
type Group struct {
	ops   stack.Ops
	epfd  int
	reaper *zcreaper.Reaper

	members map[int]*member // keyed by socket FD, holds the live reference
	order   []int           // registration order, for the flush pass and the busy-poll hint's "first socket"

	pendingHead, pendingTail *member
	pendingLen               int

	events []stack.Event
}

// New creates an empty group backed by a freshly created readiness
// descriptor.
func New(ops stack.Ops, expected zcreaper.Expected, maxEvents int) (*Group, error) {
	epfd, err := ops.EpollCreate()
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 256
	}
	return &Group{
		ops:     ops,
		epfd:    epfd,
		reaper:  zcreaper.NewReaper(expected),
		members: make(map[int]*member),
		events:  make([]stack.Event, maxEvents),
	}, nil
}

// Add registers sock for read-readiness and error events, invoking
// callback when the group finds it ready to read.
func (g *Group) Add(sock *socket.Socket, callback func(*socket.Socket)) error {
	m := &member{sock: sock, callback: callback}
	g.members[sock.FD] = m
	g.order = append(g.order, sock.FD)
	return g.ops.EpollCtl(g.epfd, stack.EpollAdd, sock.FD, uintptr(unsafe.Pointer(m)))
}

// Remove unregisters sock, aborting all of its outstanding send requests
// in addition to removing it from polling.
func (g *Group) Remove(sock *socket.Socket, err error) error {
	m, ok := g.members[sock.FD]
	if !ok {
		return nil
	}
	sock.Batcher.AbortAll(err)
	g.unlinkPending(m)
	delete(g.members, sock.FD)
	for i, fd := range g.order {
		if fd == sock.FD {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return g.ops.EpollCtl(g.epfd, stack.EpollDel, sock.FD, 0)
}

func (g *Group) unlinkPending(target *member) {
	if target.sock.PendingRecv {
		var prev *member
		for m := g.pendingHead; m != nil; m = m.next {
			if m == target {
				if prev == nil {
					g.pendingHead = m.next
				} else {
					prev.next = m.next
				}
				if g.pendingTail == m {
					g.pendingTail = prev
				}
				g.pendingLen--
				break
			}
			prev = m
		}
		target.sock.PendingRecv = false
	}
	target.next = nil
}

func (g *Group) pushPending(m *member) {
	if m.sock.PendingRecv {
		return
	}
	m.sock.PendingRecv = true
	m.next = nil
	if g.pendingTail == nil {
		g.pendingHead = m
	} else {
		g.pendingTail.next = m
	}
	g.pendingTail = m
	g.pendingLen++
}

// Poll runs one tick of the algorithm: flush every member, query
// readiness with a zero timeout, optionally issue a busy-poll hint,
// dispatch ready events into the pending-receive queue, then emit up to
// max sockets from the head of that queue into out. Returns the number of
// sockets emitted, or -1 if the readiness query failed.
func (g *Group) Poll(out []*socket.Socket) int {
	for _, fd := range append([]int(nil), g.order...) {
		m, ok := g.members[fd]
		if !ok {
			continue
		}
		if _, err := m.sock.Batcher.Flush(m.sock.Sender(), socket.IsAgain); err != nil {
			g.Remove(m.sock, err)
		}
	}

	n, err := g.ops.EpollWait(g.epfd, g.events, 0)
	if err != nil {
		return -1
	}

	if n == 0 && len(g.members) > 0 {
		g.busyPollHint()
	}

	for i := 0; i < n; i++ {
		ev := g.events[i]
		m := (*member)(unsafe.Pointer(ev.Ptr))
		if _, stillRegistered := g.members[m.sock.FD]; !stillRegistered {
			continue
		}
		if ev.Error {
			_, any := g.reaper.Drain(m.sock.ErrQueueReader(), &m.sock.Batcher.Pending, socket.IsAgain)
			if m.callback == nil {
				continue
			}
			if any {
				g.pushPending(m)
			}
		}
		if ev.Readable && !m.sock.PendingRecv {
			g.pushPending(m)
		}
	}

	return g.emit(out)
}

// busyPollHint issues a one-byte MSG_PEEK recv on the first member in
// registration order if that member has a non-zero priority, nudging the vendor stack's associated completion
// queue when the readiness descriptor reported nothing.
func (g *Group) busyPollHint() {
	if len(g.order) == 0 {
		return
	}
	m, ok := g.members[g.order[0]]
	if !ok {
		return
	}
	if m.sock.Priority != 0 {
		var b [1]byte
		_, _ = g.ops.Recv(m.sock.FD, b[:], msgPeek)
	}
}

const msgPeek = 0x2

// emit drains up to len(out) sockets from the head of the pending-receive
// queue into out, skipping (and dequeuing) sockets whose callback was
// cleared, and rotates the queue so the next poll starts from a different
// head.
func (g *Group) emit(out []*socket.Socket) int {
	count := 0
	for count < len(out) {
		m := g.pendingHead
		if m == nil {
			break
		}
		g.pendingHead = m.next
		if g.pendingHead == nil {
			g.pendingTail = nil
		}
		g.pendingLen--
		m.sock.PendingRecv = false
		m.next = nil

		if m.callback == nil {
			continue
		}
		out[count] = m.sock
		m.callback(m.sock)
		count++
	}
	return count
}

// PendingLen reports the current pending-receive queue length, exposed
// for invariant tests.
func (g *Group) PendingLen() int { return g.pendingLen }
