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

package recvcursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/wire"
)

// iovOf builds a wire.Iovec pointing directly at b's backing array. b must
// be kept alive by the caller for the duration of the test.
func iovOf(b []byte) wire.Iovec {
	var iov wire.Iovec
	iov.Set(b)
	return iov
}

// splitBytes carves src into consecutive chunks of the given lengths,
// returning one iovec per chunk (a zero length yields a zero-length chunk).
func splitBytes(src []byte, chunkLens []int) (bufs [][]byte, iovs []wire.Iovec) {
	off := 0
	for _, l := range chunkLens {
		b := src[off : off+l]
		bufs = append(bufs, b)
		iovs = append(iovs, iovOf(b))
		off += l
	}
	return
}

func sequentialBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestScenario_MultiPacketReadvSplitsCorrectly(t *testing.T) {
	// 8 KiB stream split into 3 packets with iov counts {2, 1, 3}.
	const total = 8192
	stream := sequentialBytes(total)

	// Partition the stream across 3 packets of sizes 2048/3072/3072 with
	// the given per-packet iov counts, purely to exercise multi-iov
	// packets; exact split sizes don't matter to the law being tested.
	p1 := stream[0:2048]
	p2 := stream[2048:5120]
	p3 := stream[5120:8192]

	_, p1Iovs := splitBytes(p1, []int{1024, 1024})
	_, p2Iovs := splitBytes(p2, []int{3072})
	_, p3Iovs := splitBytes(p3, []int{1024, 1024, 1024})

	c := New(16, 16)
	err := c.Ingest([]stack.PacketHandle{
		{PacketID: 1, Iovs: p1Iovs},
		{PacketID: 2, Iovs: p2Iovs},
		{PacketID: 3, Iovs: p3Iovs},
	}, nil)
	require.NoError(t, err)

	var released []uintptr
	release := func(h stack.PacketHandle) error {
		released = append(released, h.PacketID)
		return nil
	}

	dst := make([]byte, 4096)
	n, err := c.Readv(dst, release)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.Equal(t, stream[0:4096], dst)
	// Cursor should now sit inside packet 2 (offsets 0..2048 consumed of
	// packet1's 2048 bytes, then 2048 of packet2's 3072 bytes).
	require.Equal(t, []uintptr{1}, released)

	dst2 := make([]byte, 8192)
	n, err = c.Readv(dst2, release)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.Equal(t, stream[4096:8192], dst2[:4096])
	require.True(t, c.Empty())

	_, err = c.Readv(make([]byte, 1), release)
	require.ErrorIs(t, err, ErrAgain)
}

func TestCopyZeroCopyEquivalence(t *testing.T) {
	stream := sequentialBytes(4096)
	_, iovs := splitBytes(stream, []int{1024, 1024, 1024, 1024})

	// Copy-read path.
	c1 := New(4, 4)
	require.NoError(t, c1.Ingest([]stack.PacketHandle{{PacketID: 1, Iovs: iovs}}, nil))
	dst := make([]byte, 4096)
	n, err := c1.Readv(dst, nil)
	require.NoError(t, err)
	require.Equal(t, 4096, n)

	// Zero-copy path: concatenate the returned buffer-view chain.
	c2 := New(4, 4)
	require.NoError(t, c2.Ingest([]stack.PacketHandle{{PacketID: 1, Iovs: iovs}}, nil))
	headIdx, err := c2.RecvZcopy(4096)
	require.NoError(t, err)

	var zc []byte
	for idx := headIdx; idx != -1; {
		bv := c2.Buffers.At(idx)
		zc = append(zc, bv.Data...)
		idx = bv.Next
	}
	require.Equal(t, dst, zc)

	require.NoError(t, c2.FreeBufs(headIdx, nil))
}

func TestEmptyPacketIsDroppedAndReleased(t *testing.T) {
	c := New(4, 4)
	var releasedEmpty []uintptr
	err := c.Ingest([]stack.PacketHandle{
		{PacketID: 99, Iovs: nil},
	}, func(h stack.PacketHandle) error {
		releasedEmpty = append(releasedEmpty, h.PacketID)
		return nil
	})
	require.NoError(t, err)
	require.True(t, c.Empty())
	require.Equal(t, []uintptr{99}, releasedEmpty)
	require.Equal(t, 0, c.Packets.InUse())
}

func TestHeadRefcountInvariant(t *testing.T) {
	stream := sequentialBytes(100)
	_, iovs := splitBytes(stream, []int{100})
	c := New(4, 4)
	require.NoError(t, c.Ingest([]stack.PacketHandle{{PacketID: 1, Iovs: iovs}}, nil))
	require.GreaterOrEqual(t, c.HeadRefcount(), 1)
}
