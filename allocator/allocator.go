/*
 * Copyright 2024 CloudWeGo Authors
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

// Package allocator provides the (alloc, free) pair the provider registers
// with the transport stack so it can satisfy the stack's internal memory
// requests out of pool-managed memory instead of the bare heap. The
// provider's Register always registers Default; it has no parameter for
// another pair.
package allocator

import (
	"math/bits"
	"sync"
	"unsafe"
)

// Pair is an injected allocator: Alloc returns size bytes, Free releases a
// slice previously returned by Alloc. Implementations must be safe to call
// from the single thread that owns the provider; no internal locking is
// required by callers but Default uses sync.Pool so it tolerates being
// shared across provider instances in one process.
type Pair struct {
	Alloc func(size int) []byte
	Free  func(buf []byte)
}

type sizedPool struct {
	sync.Pool
	size int
}

var pools []*sizedPool

const (
	minPoolSize = 4 << 10
	maxPoolSize = 128 << 30
)

const (
	footerLen       = 8
	footerMagicMask = uint64(0xFFFFFFFFFFFFFFC0)
	footerIndexMask = uint64(0x000000000000003F)
	footerMagic     = uint64(0xBADC0DEBADC0DEC0)
)

var bits2idx [64]int

func init() {
	i := 0
	for sz := minPoolSize; sz <= maxPoolSize; sz <<= 1 {
		p := &sizedPool{size: sz}
		p.New = func() interface{} {
			b := make([]byte, 0, p.size)
			b = b[:p.size]
			return &b[0]
		}
		pools = append(pools, p)
		bits2idx[bits.Len(uint(p.size))] = i
		i++
	}
}

func poolIndex(sz int) int {
	if sz <= minPoolSize {
		return 0
	}
	i := bits2idx[bits.Len(uint(sz))]
	if uint(sz)&(uint(sz)-1) == 0 {
		return i
	}
	return i + 1
}

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// Malloc returns a buffer of exactly size bytes backed by a size-classed
// sync.Pool. The tail of the backing array carries bookkeeping used by
// Free; callers must not grow buf past size via append.
func Malloc(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	c := size + footerLen
	i := poolIndex(c)
	pool := pools[i]
	p := pool.Get().(*byte)

	ret := []byte{}
	h := (*sliceHeader)(unsafe.Pointer(&ret))
	h.Data = unsafe.Pointer(p)
	h.Len = size
	h.Cap = pool.size

	*(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen)) = footerMagic | uint64(i)
	return ret
}

// Free returns buf to its size-classed pool. Buffers not obtained from
// Malloc are silently ignored.
func Free(buf []byte) {
	c := cap(buf)
	if c < minPoolSize || uint(c)&uint(c-1) != 0 {
		return
	}
	size := len(buf)
	if c-size < footerLen {
		return
	}
	h := (*sliceHeader)(unsafe.Pointer(&buf))
	footer := *(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen))
	if footer&footerMagicMask != footerMagic {
		return
	}
	i := int(footer & footerIndexMask)
	if i < len(pools) {
		if p := pools[i]; p.size == c {
			p.Put(&buf[0])
		}
	}
}

// Default is the allocator pair the provider registers with the stack.
var Default = Pair{Alloc: Malloc, Free: Free}
