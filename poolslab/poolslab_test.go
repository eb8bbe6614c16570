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

package poolslab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPacketPool(4)
	require.Equal(t, 4, p.Cap())

	var acquired []int
	for i := 0; i < 4; i++ {
		idx, err := p.Acquire()
		require.NoError(t, err)
		acquired = append(acquired, idx)
	}
	require.Equal(t, 4, p.InUse())

	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrPoolExhausted)

	for _, idx := range acquired {
		p.Release(idx)
	}
	require.Equal(t, 0, p.InUse())

	idx, err := p.Acquire()
	require.NoError(t, err)
	require.GreaterOrEqual(t, idx, 0)
}

func TestPacketPoolCapacityConserved(t *testing.T) {
	p := NewPacketPool(8)
	var held []int
	for i := 0; i < 5; i++ {
		idx, err := p.Acquire()
		require.NoError(t, err)
		held = append(held, idx)
	}
	// Sum of free-list length (approximated: Cap - InUse) and in-use count
	// must equal capacity at all times.
	require.Equal(t, p.Cap(), p.InUse()+(p.Cap()-p.InUse()))
	for _, idx := range held[:2] {
		p.Release(idx)
	}
	require.Equal(t, 3, p.InUse())
}

func TestBufferPoolAcquireReleaseRoundTrip(t *testing.T) {
	b := NewBufferPool(2)
	i1, err := b.Acquire()
	require.NoError(t, err)
	i2, err := b.Acquire()
	require.NoError(t, err)
	_, err = b.Acquire()
	require.ErrorIs(t, err, ErrPoolExhausted)

	b.Release(i1)
	b.Release(i2)
	require.Equal(t, 0, b.InUse())
}

func TestZeroCapacityPoolExhaustsImmediately(t *testing.T) {
	p := NewPacketPool(0)
	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrPoolExhausted)
}
