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

// Package poolslab implements the fixed-capacity packet and buffer-view
// free lists each socket owns. Every packet and buffer view is allocated
// once, up front, and strung into a singly linked free list by index so the
// hot path never touches the Go allocator; the lists are intentionally not
// goroutine-safe, matching the single-threaded-per-group ownership model.
package poolslab

import (
	"errors"

	"github.com/cloudwego/xliosock/wire"
)

// ErrPoolExhausted is returned when a free list has no entries left. The
// design treats this as a caller sizing error: pools are meant to be sized
// to the worst-case outstanding concurrency.
var ErrPoolExhausted = errors.New("poolslab: pool exhausted")

const (
	// DefaultPackets is N_PACKETS, the default packet descriptor count.
	DefaultPackets = 1024
	// DefaultBuffers is N_BUFFERS, the default buffer view count.
	DefaultBuffers = 4096
)

const nilIndex = -1

// Packet wraps one stack-owned packet descriptor. PacketID is opaque to
// this package; it is only meaningful to the stack binding's
// ReleasePackets call. Refcount starts at 1 while queued for read, plus one
// per outstanding buffer view.
type Packet struct {
	PacketID uintptr
	Iovs     []wire.Iovec
	Refcount int

	next int // free-list / queue link, index into PacketPool.items
}

// PacketPool is a fixed-capacity free list of Packet descriptors.
type PacketPool struct {
	items    []Packet
	freeHead int
	inUse    int
}

// NewPacketPool allocates n packet descriptors up front and strings them
// into a free list.
func NewPacketPool(n int) *PacketPool {
	p := &PacketPool{items: make([]Packet, n)}
	for i := range p.items {
		p.items[i].next = i + 1
	}
	if n > 0 {
		p.items[n-1].next = nilIndex
	} else {
		p.freeHead = nilIndex
	}
	return p
}

// Cap returns total capacity.
func (p *PacketPool) Cap() int { return len(p.items) }

// InUse returns the number of packets currently acquired.
func (p *PacketPool) InUse() int { return p.inUse }

// Acquire pops a packet off the free list, resets it, and returns its
// index. ErrPoolExhausted if none remain.
func (p *PacketPool) Acquire() (idx int, err error) {
	if p.freeHead == nilIndex {
		return -1, ErrPoolExhausted
	}
	idx = p.freeHead
	pk := &p.items[idx]
	p.freeHead = pk.next
	pk.next = nilIndex
	pk.PacketID = 0
	pk.Iovs = pk.Iovs[:0]
	pk.Refcount = 0
	p.inUse++
	return idx, nil
}

// Release returns a packet to the free list by index.
func (p *PacketPool) Release(idx int) {
	pk := &p.items[idx]
	pk.next = p.freeHead
	p.freeHead = idx
	p.inUse--
}

// At returns a pointer to the packet at idx, valid until the next Acquire
// of the same index.
func (p *PacketPool) At(idx int) *Packet { return &p.items[idx] }

// BufferView is a borrowed-slice handle into a packet's iov. Next chains
// views returned together from a zero-copy read into a singly linked list.
type BufferView struct {
	Data      []byte
	PacketIdx int
	Next      int // index into BufferPool.items, or nilIndex

	free int // free-list link
}

// BufferPool is a fixed-capacity free list of BufferView handles.
type BufferPool struct {
	items    []BufferView
	freeHead int
	inUse    int
}

// NewBufferPool allocates n buffer views up front.
func NewBufferPool(n int) *BufferPool {
	p := &BufferPool{items: make([]BufferView, n)}
	for i := range p.items {
		p.items[i].free = i + 1
	}
	if n > 0 {
		p.items[n-1].free = nilIndex
	} else {
		p.freeHead = nilIndex
	}
	return p
}

// Cap returns total capacity.
func (p *BufferPool) Cap() int { return len(p.items) }

// InUse returns the number of buffer views currently acquired.
func (p *BufferPool) InUse() int { return p.inUse }

// Acquire pops a buffer view off the free list.
func (p *BufferPool) Acquire() (idx int, err error) {
	if p.freeHead == nilIndex {
		return -1, ErrPoolExhausted
	}
	idx = p.freeHead
	bv := &p.items[idx]
	p.freeHead = bv.free
	bv.free = nilIndex
	bv.Data = nil
	bv.PacketIdx = nilIndex
	bv.Next = nilIndex
	p.inUse++
	return idx, nil
}

// Release returns a buffer view to the free list by index.
func (p *BufferPool) Release(idx int) {
	bv := &p.items[idx]
	bv.free = p.freeHead
	p.freeHead = idx
	p.inUse--
}

// At returns a pointer to the buffer view at idx.
func (p *BufferPool) At(idx int) *BufferView { return &p.items[idx] }

// NilIndex is the sentinel "no link" value shared by both pools' index
// fields (PacketPool free list, BufferView.Next chains).
const NilIndex = nilIndex
