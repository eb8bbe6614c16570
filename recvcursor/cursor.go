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

// Package recvcursor tracks the ordered queue of in-flight received packets
// for one socket and the (packet, iov, offset) read position inside it. It
// is the only place that understands how to walk a chain of zero-copy
// packets either by copying bytes out or by handing back borrowed buffer
// views.
package recvcursor

import (
	"errors"
	"unsafe"

	"github.com/cloudwego/xliosock/internal/unsafeslice"
	"github.com/cloudwego/xliosock/poolslab"
	"github.com/cloudwego/xliosock/stack"
)

// unsafePtr converts an ABI-shaped iovec base address back into a Go
// pointer. The memory it refers to is owned by the stack's packet pool,
// not by this process's allocator.
func unsafePtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // foreign memory, not a Go object
}

// ErrAgain mirrors the again/wouldblock condition: no data queued.
var ErrAgain = errors.New("recvcursor: no data available")

// queuedPacket is one entry of the received-packet queue, distinct from the
// pool-level poolslab.Packet so the cursor can track per-packet iov/offset
// state without mutating the pooled descriptor itself.
type queuedPacket struct {
	idx    int // index into Packets pool
	iov    int // current iov within packet
	offset int // current byte offset within that iov
	next   int // queue link, or poolslab.NilIndex
}

// Cursor owns one socket's packet queue, packet pool and buffer pool. It
// assumes single-threaded access, matching the per-group ownership model.
type Cursor struct {
	Packets *poolslab.PacketPool
	Buffers *poolslab.BufferPool

	queue     []queuedPacket // parallel array indexed like Packets.items
	head      int
	tail      int
	queueLen  int
}

// New creates a cursor backed by newly allocated packet/buffer pools sized
// n packets and m buffer views.
func New(nPackets, nBuffers int) *Cursor {
	return &Cursor{
		Packets: poolslab.NewPacketPool(nPackets),
		Buffers: poolslab.NewBufferPool(nBuffers),
		queue:   make([]queuedPacket, nPackets),
		head:    poolslab.NilIndex,
		tail:    poolslab.NilIndex,
	}
}

// Empty reports whether the received-packet queue has no entries.
func (c *Cursor) Empty() bool { return c.queueLen == 0 }

// Ingest accepts the packet handles returned by a receive-zero-copy call.
// Every non-empty packet (its iovs sum to > 0 bytes) is pooled, given
// refcount 1, and appended to the queue. Empty packets are released back to
// the stack immediately — the design treats a zero-length packet as a
// legitimate, if unexplained, stack occurrence.
//
// releaseEmpty is the stack's ReleasePackets-equivalent for the single empty
// packet case; it is invoked synchronously here rather than batched, since
// empty packets are expected to be rare.
func (c *Cursor) Ingest(handles []stack.PacketHandle, releaseEmpty func(stack.PacketHandle) error) error {
	for _, h := range handles {
		total := 0
		for _, iov := range h.Iovs {
			total += int(iov.Len)
		}
		if total == 0 {
			if releaseEmpty != nil {
				if err := releaseEmpty(h); err != nil {
					return err
				}
			}
			continue
		}
		idx, err := c.Packets.Acquire()
		if err != nil {
			return err
		}
		pk := c.Packets.At(idx)
		pk.PacketID = h.PacketID
		pk.Iovs = append(pk.Iovs[:0], h.Iovs...)
		pk.Refcount = 1
		c.enqueue(idx)
	}
	return nil
}

func (c *Cursor) enqueue(idx int) {
	c.queue[idx] = queuedPacket{idx: idx, next: poolslab.NilIndex}
	if c.tail == poolslab.NilIndex {
		c.head = idx
	} else {
		c.queue[c.tail].next = idx
	}
	c.tail = idx
	c.queueLen++
}

// NextChunk returns a slice of at most max bytes from the head of the
// cursor and the index of the packet it belongs to. Zero-length iovs are
// skipped transparently. Returns a nil slice with ok=false iff no data is
// queued.
func (c *Cursor) NextChunk(max int) (data []byte, packetIdx int, ok bool) {
	for c.head != poolslab.NilIndex {
		qp := &c.queue[c.head]
		pk := c.Packets.At(qp.idx)
		for qp.iov < len(pk.Iovs) && pk.Iovs[qp.iov].Len == 0 {
			qp.iov++
			qp.offset = 0
		}
		if qp.iov >= len(pk.Iovs) {
			c.popHead()
			continue
		}
		iov := pk.Iovs[qp.iov]
		remaining := int(iov.Len) - qp.offset
		n := remaining
		if n > max {
			n = max
		}
		base := unsafeslice.FromPointer(unsafePtr(iov.Base), int(iov.Len))
		return base[qp.offset : qp.offset+n], qp.idx, true
	}
	return nil, 0, false
}

// Advance consumes n bytes from the cursor. For every iov fully consumed it
// steps to the next iov; for every packet fully consumed it pops the queue
// head, decrements its refcount, and frees it back to the pool (and, via
// release, to the stack) on transition to zero. Advancing past available
// data is a programming error and panics, matching the source's assertion
// discipline.
func (c *Cursor) Advance(n int, release func(stack.PacketHandle) error) error {
	for n > 0 {
		if c.head == poolslab.NilIndex {
			panic("recvcursor: advance past available data")
		}
		qp := &c.queue[c.head]
		pk := c.Packets.At(qp.idx)
		for qp.iov < len(pk.Iovs) && pk.Iovs[qp.iov].Len == 0 {
			qp.iov++
			qp.offset = 0
		}
		if qp.iov >= len(pk.Iovs) {
			if err := c.popHeadAndRelease(release); err != nil {
				return err
			}
			continue
		}
		iov := pk.Iovs[qp.iov]
		remaining := int(iov.Len) - qp.offset
		step := remaining
		if step > n {
			step = n
		}
		qp.offset += step
		n -= step
		if qp.offset == int(iov.Len) {
			qp.iov++
			qp.offset = 0
			for qp.iov < len(pk.Iovs) && pk.Iovs[qp.iov].Len == 0 {
				qp.iov++
			}
		}
		if qp.iov >= len(pk.Iovs) {
			if err := c.popHeadAndRelease(release); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cursor) popHead() {
	idx := c.head
	c.head = c.queue[idx].next
	if c.head == poolslab.NilIndex {
		c.tail = poolslab.NilIndex
	}
	c.queueLen--
}

func (c *Cursor) popHeadAndRelease(release func(stack.PacketHandle) error) error {
	idx := c.head
	pk := c.Packets.At(idx)
	c.popHead()
	pk.Refcount--
	if pk.Refcount <= 0 {
		if release != nil {
			if err := release(stack.PacketHandle{PacketID: pk.PacketID, Iovs: pk.Iovs}); err != nil {
				c.Packets.Release(idx)
				return err
			}
		}
		c.Packets.Release(idx)
	}
	return nil
}

// Readv performs a copy read into dst, repeatedly draining NextChunk and
// Advance-ing past what was copied. Returns the total bytes copied;
// ErrAgain if nothing was available at all.
func (c *Cursor) Readv(dst []byte, release func(stack.PacketHandle) error) (int, error) {
	total := 0
	for total < len(dst) {
		chunk, _, ok := c.NextChunk(len(dst) - total)
		if !ok {
			break
		}
		copy(dst[total:], chunk)
		n := len(chunk)
		if err := c.Advance(n, release); err != nil {
			return total, err
		}
		total += n
	}
	if total == 0 {
		return 0, ErrAgain
	}
	return total, nil
}

// RecvZcopy acquires a buffer view for each available chunk up to max
// total bytes, incrementing the owning packet's refcount and chaining the
// views into a singly linked list (returned as the head index, or
// poolslab.NilIndex if nothing was available).
func (c *Cursor) RecvZcopy(max int) (headIdx int, err error) {
	headIdx = poolslab.NilIndex
	tailIdx := poolslab.NilIndex
	remaining := max
	for remaining > 0 {
		chunk, packetIdx, ok := c.NextChunk(remaining)
		if !ok {
			break
		}
		bIdx, aerr := c.Buffers.Acquire()
		if aerr != nil {
			return headIdx, aerr
		}
		bv := c.Buffers.At(bIdx)
		bv.Data = chunk
		bv.PacketIdx = packetIdx
		bv.Next = poolslab.NilIndex
		c.Packets.At(packetIdx).Refcount++

		if headIdx == poolslab.NilIndex {
			headIdx = bIdx
		} else {
			c.Buffers.At(tailIdx).Next = bIdx
		}
		tailIdx = bIdx

		n := len(chunk)
		if err := c.Advance(n, nil); err != nil {
			return headIdx, err
		}
		remaining -= n
	}
	return headIdx, nil
}

// FreeBufs walks a buffer-view chain returned by RecvZcopy, returning each
// view to the buffer pool and decrementing its packet's refcount, freeing
// the packet back to the stack (via release) on transition to zero.
func (c *Cursor) FreeBufs(headIdx int, release func(stack.PacketHandle) error) error {
	for headIdx != poolslab.NilIndex {
		bv := c.Buffers.At(headIdx)
		next := bv.Next
		packetIdx := bv.PacketIdx
		c.Buffers.Release(headIdx)

		pk := c.Packets.At(packetIdx)
		pk.Refcount--
		if pk.Refcount <= 0 {
			if release != nil {
				if err := release(stack.PacketHandle{PacketID: pk.PacketID, Iovs: pk.Iovs}); err != nil {
					return err
				}
			}
			c.Packets.Release(packetIdx)
		}
		headIdx = next
	}
	return nil
}

// HeadRefcount returns the refcount of the packet at the cursor head, or 0
// if the queue is empty. Exposed for invariant testing.
func (c *Cursor) HeadRefcount() int {
	if c.head == poolslab.NilIndex {
		return 0
	}
	return c.Packets.At(c.queue[c.head].idx).Refcount
}
