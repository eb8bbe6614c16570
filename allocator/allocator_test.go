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

package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMallocReturnsRequestedLength(t *testing.T) {
	buf := Malloc(100)
	require.Len(t, buf, 100)
	Free(buf)
}

func TestMallocZeroSizeIsEmptySlice(t *testing.T) {
	buf := Malloc(0)
	require.Empty(t, buf)
	Free(buf) // must not panic on a slice with no pool footer
}

func TestMallocRoundsUpToPoolSizeClass(t *testing.T) {
	buf := Malloc(minPoolSize + 1)
	require.Len(t, buf, minPoolSize+1)
	require.GreaterOrEqual(t, cap(buf), minPoolSize*2)
	Free(buf)
}

func TestFreeOfForeignSliceIsIgnored(t *testing.T) {
	foreign := make([]byte, minPoolSize)
	require.NotPanics(t, func() { Free(foreign) })
}

func TestMallocReuseAfterFreeStaysWithinSizeClass(t *testing.T) {
	a := Malloc(4096)
	classCap := cap(a)
	Free(a)

	b := Malloc(4096)
	require.Equal(t, classCap, cap(b))
	Free(b)
}

func TestDefaultPairRoundTrips(t *testing.T) {
	buf := Default.Alloc(2048)
	require.Len(t, buf, 2048)
	Default.Free(buf)
}
