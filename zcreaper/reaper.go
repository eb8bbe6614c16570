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

// Package zcreaper drains a socket's kernel error queue for zero-copy send
// completions and matches the announced sequence ranges back onto the
// pending-completion queue built by txbatch.
package zcreaper

import (
	"github.com/cloudwego/xliosock/internal/xlog"
	"github.com/cloudwego/xliosock/txbatch"
	"github.com/cloudwego/xliosock/wire"
)

// ErrQueueReader is the subset of stack.Ops the reaper needs.
type ErrQueueReader interface {
	RecvErrQueue(control []byte) ([]byte, error)
}

// Expected names the control-message level/type/origin a completion must
// carry to be accepted; anything else is a non-fatal warning and stops the
// current drain loop (the reaper still returns what it matched so far).
type Expected struct {
	Level  int32
	Type   int32
	Origin uint8
}

// Reaper owns the scratch control-message buffer used to drain one
// socket's error queue.
type Reaper struct {
	Expected Expected
	scratch  []byte

	// OnWarning, if set, is invoked for a non-fatal parse mismatch; it's
	// the caller's logging hook, not a failure signal.
	OnWarning func(reason string)
}

// NewReaper allocates a reaper with a control-message scratch buffer sized
// for one completion entry.
func NewReaper(expected Expected) *Reaper {
	return &Reaper{
		Expected: expected,
		scratch:  make([]byte, 256),
	}
}

// again is satisfied by the caller's Again/EAGAIN/EWOULDBLOCK sentinel via
// isAgain; kept as a function parameter so this package doesn't import
// syscall-level error types directly.

// Drain repeatedly calls RecvErrQueue until it reports again/wouldblock
// (per isAgain), matching each announced [lo, hi] range against pending in
// FIFO order. It returns how many requests were completed and whether any
// were. Non-zero-copy requests encountered while scanning the pending
// queue are completed unconditionally in order — they are placeholders
// waiting purely on FIFO position, not on a sequence match.
func (r *Reaper) Drain(reader ErrQueueReader, pending *txbatch.Queue, isAgain func(error) bool) (completed int, any bool) {
	for {
		ctrl, err := reader.RecvErrQueue(r.scratch)
		if err != nil {
			if isAgain != nil && isAgain(err) {
				return completed, any
			}
			return completed, any
		}
		rng, ok := wire.ParseZeroCopyCompletion(ctrl, r.Expected.Level, r.Expected.Type, r.Expected.Origin)
		if !ok {
			if r.OnWarning != nil {
				r.OnWarning("zcreaper: unexpected control message shape")
			} else {
				xlog.Warnf("zcreaper: unexpected control message shape, dropping reaper loop")
			}
			return completed, any
		}
		n := r.matchRange(pending, rng)
		completed += n
		if n > 0 {
			any = true
		}
	}
}

// matchRange walks pending from the front. Non-zero-copy requests are
// completed immediately (FIFO placeholders). Zero-copy requests are
// completed while their Seq falls in [lo, hi]; once a match has been seen,
// the first subsequent non-match stops the scan, since same-sendmsg
// requests are contiguous in the queue.
func (r *Reaper) matchRange(pending *txbatch.Queue, rng wire.ZeroCopyRange) int {
	matched := 0
	sawMatch := false
	for {
		req := pending.Front()
		if req == nil {
			return matched
		}
		if !req.IsZcopy {
			pending.PopFront()
			if req.Done != nil {
				req.Done(req.TotalLen(), nil)
			}
			matched++
			continue
		}
		if inRange(req.Seq, rng) {
			pending.PopFront()
			if req.Done != nil {
				req.Done(req.TotalLen(), nil)
			}
			matched++
			sawMatch = true
			continue
		}
		if sawMatch {
			return matched
		}
		return matched
	}
}

func inRange(seq uint32, rng wire.ZeroCopyRange) bool {
	if rng.Lo <= rng.Hi {
		return seq >= rng.Lo && seq <= rng.Hi
	}
	// wrapped range: [Lo, max] U [1, Hi]
	return seq >= rng.Lo || (seq >= 1 && seq <= rng.Hi)
}
