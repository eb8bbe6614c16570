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

// Package txbatch drains a socket's queued send requests into a single
// scatter/gather sendmsg call, deciding zero-copy eligibility and attaching
// memory-key control data, then walks completions back onto the queued
// requests in submission order.
package txbatch

import (
	"github.com/cloudwego/xliosock/wire"
)

// Request is one queued send, owned by the framework; this package only
// reads and advances it. Offset is the number of bytes of Iovs already
// consumed by prior partial sends.
type Request struct {
	Iovs      []wire.Iovec
	Offset    int
	Keys      []wire.MemKey // one per iov, only meaningful if non-nil
	MemDomain bool

	// IsZcopy is set by the batcher, not the caller, once this request is
	// fully drained: true iff the sendmsg call it rode on used zero-copy.
	IsZcopy bool

	// Seq is set once the request is fully drained: the sendmsg sequence it
	// was tagged with if IsZcopy, otherwise left zero; such a request
	// completes as soon as no zero-copy request is ahead of it in Pending.
	Seq uint32

	// Done is invoked exactly once, when the request's fate is known.
	Done func(n int, err error)

	next *Request
}

// TotalLen returns the total byte length of Iovs from Offset onward,
// walking Offset across iov boundaries the way the offset-consumption loop
// in sendmsg's own iovec walk does: an iov fully covered by the offset
// contributes nothing and the offset carries into the next one.
func (r *Request) TotalLen() int {
	remaining := r.Offset
	total := 0
	for _, iov := range r.Iovs {
		l := int(iov.Len)
		if remaining >= l {
			remaining -= l
			continue
		}
		total += l - remaining
		remaining = 0
	}
	return total
}

// Queue is an ordered FIFO of *Request, implemented as a small intrusive
// singly linked list so the batcher never allocates while draining.
type Queue struct {
	head, tail *Request
	length     int
}

func (q *Queue) Len() int { return q.length }

func (q *Queue) Empty() bool { return q.head == nil }

func (q *Queue) PushBack(r *Request) {
	r.next = nil
	if q.tail == nil {
		q.head = r
	} else {
		q.tail.next = r
	}
	q.tail = r
	q.length++
}

func (q *Queue) Front() *Request { return q.head }

func (q *Queue) PopFront() *Request {
	r := q.head
	if r == nil {
		return nil
	}
	q.head = r.next
	if q.head == nil {
		q.tail = nil
	}
	r.next = nil
	q.length--
	return r
}

// Drain removes and returns every request for which keep returns false,
// preserving relative order, and leaves the rest in place.
func (q *Queue) Drain(keep func(*Request) bool) []*Request {
	var dropped []*Request
	var newHead, newTail *Request
	for r := q.head; r != nil; {
		next := r.next
		r.next = nil
		if keep(r) {
			if newTail == nil {
				newHead = r
			} else {
				newTail.next = r
			}
			newTail = r
		} else {
			dropped = append(dropped, r)
			q.length--
		}
		r = next
	}
	q.head, q.tail = newHead, newTail
	return dropped
}
