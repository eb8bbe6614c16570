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

package txbatch

import (
	"errors"

	"github.com/cloudwego/xliosock/wire"
)

// IOVBatchSize bounds how many iovs a single sendmsg call may carry.
const IOVBatchSize = 1024

// DefaultZerocopyThreshold is the payload size above which zero-copy send
// is chosen even without memory keys present.
const DefaultZerocopyThreshold = 4096

// CmsgConsts names the control-message level/type the memory-key block is
// emitted under. Vendor-specific; set by the provider at construction.
type CmsgConsts struct {
	Level int32
	Type  int32
}

// Sender is the subset of stack.Ops the batcher needs, kept narrow so this
// package doesn't import stack directly and can be driven by any
// sendmsg-shaped function in tests.
type Sender interface {
	SendmsgIov(iovs []wire.Iovec, control []byte, flags int) (int, error)
}

// Again is returned by a Sender when the syscall would need to block; the
// batcher treats it as "try later", never a failure.
var Again = errors.New("txbatch: operation would block")

// Batcher owns one socket's waiting and pending-completion queues and the
// policy for draining the former into sendmsg calls.
type Batcher struct {
	Waiting Queue
	Pending Queue

	ZerocopyEnabled   bool
	ZerocopyThreshold int
	Cmsg              CmsgConsts

	seq uint32 // sendmsg sequence counter, never zero

	keyBlock *wire.MemKeyBlock
	iovBuf   []wire.Iovec
	keyBuf   []wire.MemKey
}

// NewBatcher constructs a batcher with the given zero-copy policy.
func NewBatcher(zerocopyEnabled bool, threshold int, cmsg CmsgConsts) *Batcher {
	if threshold <= 0 {
		threshold = DefaultZerocopyThreshold
	}
	return &Batcher{
		ZerocopyEnabled:   zerocopyEnabled,
		ZerocopyThreshold: threshold,
		Cmsg:              cmsg,
		seq:               1,
		keyBlock:          wire.NewMemKeyBlock(IOVBatchSize),
		iovBuf:            make([]wire.Iovec, 0, IOVBatchSize),
		keyBuf:            make([]wire.MemKey, 0, IOVBatchSize),
	}
}

// Seq returns the current sendmsg sequence value (for tests/invariants).
func (b *Batcher) Seq() uint32 { return b.seq }

// bumpSeq increments the sequence counter and returns the new value,
// wrapping from max back to 1 (0 is never a valid sequence).
func (b *Batcher) bumpSeq() uint32 {
	b.seq++
	if b.seq == 0 {
		b.seq = 1
	}
	return b.seq
}

// drainPlan describes what Flush decided to send: the iov slice, whether
// keys are present on the first (defining) request, the per-iov key
// records sized exactly to iovs (only populated if keyed), and the
// requests it spans in order.
type drainPlan struct {
	iovs    []wire.Iovec
	keys    []wire.MemKey
	keyed   bool
	spanned []*Request
}

// buildPlan walks Waiting from the head, stopping at IOVBatchSize or at the
// first request whose key-presence disagrees with the first drained one.
// A request's Offset is consumed iov-by-iov (only ever non-zero on the very
// first request visited, since applyCompletion only ever advances the
// queue's front): an iov fully covered by the offset is skipped entirely
// and the remainder carries forward, rather than being subtracted from
// index 0 alone.
func (b *Batcher) buildPlan() drainPlan {
	b.iovBuf = b.iovBuf[:0]
	b.keyBuf = b.keyBuf[:0]
	plan := drainPlan{}
	first := true
	for r := b.Waiting.Front(); r != nil; r = r.nextPeek() {
		hasKeys := r.Keys != nil
		isFirstReq := first
		if first {
			plan.keyed = hasKeys
			first = false
		} else if hasKeys != plan.keyed {
			break
		}
		remaining := 0
		if isFirstReq {
			remaining = r.Offset
		}
		added := false
		for i, iov := range r.Iovs {
			lo := uint64(0)
			if remaining > 0 {
				if remaining >= int(iov.Len) {
					remaining -= int(iov.Len)
					continue
				}
				lo = uint64(remaining)
				remaining = 0
			}
			if len(b.iovBuf) >= IOVBatchSize {
				break
			}
			var sub wire.Iovec
			sub.Base = iov.Base + uintptr(lo)
			sub.Len = iov.Len - lo
			b.iovBuf = append(b.iovBuf, sub)
			if plan.keyed {
				var k wire.MemKey
				if i < len(r.Keys) {
					k = r.Keys[i]
				}
				b.keyBuf = append(b.keyBuf, k)
			}
			added = true
		}
		if added {
			plan.spanned = append(plan.spanned, r)
		}
		if len(b.iovBuf) >= IOVBatchSize {
			break
		}
	}
	plan.iovs = b.iovBuf
	plan.keys = b.keyBuf
	return plan
}

// nextPeek walks the intrusive list without popping; exported here as a
// method so buildPlan can iterate Waiting non-destructively.
func (r *Request) nextPeek() *Request { return r.next }

func payloadLen(iovs []wire.Iovec) int {
	total := 0
	for _, iov := range iovs {
		total += int(iov.Len)
	}
	return total
}

// Flush drains Waiting into at most one sendmsg call. Returns the number
// of bytes sent (0 if nothing was ready or the send would block). A
// non-again/wouldblock/no-buffers error is returned verbatim for the
// caller to propagate; no request is implicitly aborted.
func (b *Batcher) Flush(sender Sender, isAgainNoBuffers func(error) bool) (int, error) {
	if b.Waiting.Empty() {
		return 0, nil
	}
	plan := b.buildPlan()
	if len(plan.iovs) == 0 {
		return 0, nil
	}

	total := payloadLen(plan.iovs)
	useZcopy := b.ZerocopyEnabled && (plan.keyed || total >= b.ZerocopyThreshold)

	var control []byte
	if plan.keyed {
		control = b.keyBlock.Fill(b.Cmsg.Level, b.Cmsg.Type, plan.keys)
	}

	flags := 0
	if useZcopy {
		flags = msgZerocopy
	}

	n, err := sender.SendmsgIov(plan.iovs, control, flags)
	if err != nil {
		if isAgainNoBuffers != nil && isAgainNoBuffers(err) {
			return 0, nil
		}
		return 0, err
	}

	var curSeq uint32
	if useZcopy {
		curSeq = b.bumpSeq()
	}
	b.applyCompletion(n, useZcopy, curSeq)
	return n, nil
}

// applyCompletion walks Waiting in order, advancing each request's Offset
// by up to n, moving fully consumed requests to Pending tagged with the
// current sequence if zero-copy was used. A fully consumed non-zero-copy
// request at the head of Pending completes immediately (no error-queue
// completion will ever arrive for it).
func (b *Batcher) applyCompletion(n int, usedZcopy bool, curSeq uint32) {
	remaining := n
	for remaining > 0 && !b.Waiting.Empty() {
		r := b.Waiting.Front()
		r.IsZcopy = usedZcopy
		total := r.TotalLen()
		if remaining < total {
			r.Offset += remaining
			remaining = 0
			break
		}
		remaining -= total
		b.Waiting.PopFront()
		r.Seq = curSeq
		b.Pending.PushBack(r)
	}
	b.drainSyncHead()
}

// drainSyncHead completes, in order, every non-zero-copy request sitting
// at the head of Pending. Zero-copy requests block this drain until the
// reaper completes them, preserving submission-order completion.
func (b *Batcher) drainSyncHead() {
	for {
		r := b.Pending.Front()
		if r == nil || r.IsZcopy {
			return
		}
		b.Pending.PopFront()
		if r.Done != nil {
			r.Done(r.TotalLen(), nil)
		}
	}
}

// AbortAll fails every queued and pending request with err, for use when
// the socket hits an unrecoverable error or is removed from its group.
func (b *Batcher) AbortAll(err error) {
	for r := b.Waiting.PopFront(); r != nil; r = b.Waiting.PopFront() {
		if r.Done != nil {
			r.Done(0, err)
		}
	}
	for r := b.Pending.PopFront(); r != nil; r = b.Pending.PopFront() {
		if r.Done != nil {
			r.Done(0, err)
		}
	}
}

// msgZerocopy mirrors MSG_ZEROCOPY (Linux-specific, value 0x4000000).
const msgZerocopy = 0x4000000
