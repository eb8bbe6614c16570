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

package wire

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MemKeyBlock is a reusable scratch buffer for the per-iov memory-key
// ancillary data attached to a zero-copy send. It is sized for the worst
// case batch (IOVBatchSize entries) so the transmit batcher never allocates
// on the hot path.
type MemKeyBlock struct {
	buf []byte
}

// NewMemKeyBlock allocates a block large enough for maxIov entries.
func NewMemKeyBlock(maxIov int) *MemKeyBlock {
	return &MemKeyBlock{buf: make([]byte, unix.CmsgSpace(int(uintptr(maxIov)*unsafe.Sizeof(MemKey{}))))}
}

// Fill writes a cmsg header plus n MemKey records into the block and returns
// the slice to hand to sendmsg as msg_control. If n exceeds the capacity the
// block was constructed with, the block's buffer is reallocated to fit.
func (b *MemKeyBlock) Fill(level, typ int32, keys []MemKey) []byte {
	n := len(keys)
	keySize := int(unsafe.Sizeof(MemKey{}))
	want := unix.CmsgSpace(n * keySize)
	if want > len(b.buf) {
		b.buf = make([]byte, want)
	}
	buf := b.buf[:want]
	hdr := (*CmsgHeader)(unsafe.Pointer(&buf[0]))
	hdr.Len = uint64(unix.CmsgLen(n * keySize))
	hdr.Level = level
	hdr.Type = typ

	data := buf[unix.CmsgLen(0):]
	for i, k := range keys {
		*(*MemKey)(unsafe.Pointer(&data[i*keySize])) = k
	}
	return buf[:unix.CmsgLen(n*keySize)]
}

// ZeroCopyRange is an inclusive [Lo, Hi] range of sendmsg sequence numbers
// that the stack has confirmed transmitted and released.
type ZeroCopyRange struct {
	Lo uint32
	Hi uint32
}

// ParseZeroCopyCompletion inspects the first control message of an
// MSG_ERRQUEUE recvmsg result and extracts the confirmed sequence range.
// ok is false if the control message wasn't the expected zero-copy
// completion shape (caller should treat this as a non-fatal warning).
func ParseZeroCopyCompletion(control []byte, wantLevel, wantType int32, wantOrigin uint8) (rng ZeroCopyRange, ok bool) {
	msgs, err := unix.ParseSocketControlMessage(control)
	if err != nil || len(msgs) == 0 {
		return rng, false
	}
	hdr := msgs[0].Header
	if int32(hdr.Level) != wantLevel || int32(hdr.Type) != wantType {
		return rng, false
	}
	data := msgs[0].Data
	if len(data) < int(unsafe.Sizeof(ExtendedErr{})) {
		return rng, false
	}
	ee := (*ExtendedErr)(unsafe.Pointer(&data[0]))
	if ee.Origin != wantOrigin {
		return rng, false
	}
	return ZeroCopyRange{Lo: ee.Info, Hi: ee.Data}, true
}
