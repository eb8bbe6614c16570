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

package zcreaper

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cloudwego/xliosock/txbatch"
	"github.com/cloudwego/xliosock/wire"
)

const (
	testLevel  = 0 // SOL_IP
	testType   = 11
	testOrigin = 5 // SO_EE_ORIGIN_ZEROCOPY
)

// fakeErrQueue replays a scripted sequence of control-message buffers,
// then reports again.
type fakeErrQueue struct {
	buffers [][]byte
	i       int
}

var errAgain = errors.New("again")

func (f *fakeErrQueue) RecvErrQueue(control []byte) ([]byte, error) {
	if f.i >= len(f.buffers) {
		return nil, errAgain
	}
	b := f.buffers[f.i]
	f.i++
	return b, nil
}

func buildCompletion(t *testing.T, lo, hi uint32) []byte {
	t.Helper()
	ee := wire.ExtendedErr{Origin: testOrigin, Info: lo, Data: hi}
	data := make([]byte, unsafe.Sizeof(ee))
	*(*wire.ExtendedErr)(unsafe.Pointer(&data[0])) = ee

	buf := make([]byte, unix.CmsgSpace(len(data)))
	hdr := (*wire.CmsgHeader)(unsafe.Pointer(&buf[0]))
	hdr.Level = testLevel
	hdr.Type = testType
	hdr.Len = uint64(unix.CmsgLen(len(data)))
	copy(buf[unix.CmsgLen(0):], data)
	return buf
}

func TestScenario_TwoZerocopySendsOneRangeCompletesBothInOrder(t *testing.T) {
	pending := &txbatch.Queue{}
	var order []uint32
	mk := func(seq uint32) *txbatch.Request {
		return &txbatch.Request{IsZcopy: true, Seq: seq, Done: func(int, error) {
			order = append(order, seq)
		}}
	}
	pending.PushBack(mk(10))
	pending.PushBack(mk(11))

	q := &fakeErrQueue{buffers: [][]byte{buildCompletion(t, 10, 11)}}
	r := NewReaper(Expected{Level: testLevel, Type: testType, Origin: testOrigin})

	completed, any := r.Drain(q, pending, func(err error) bool { return err == errAgain })
	require.True(t, any)
	require.Equal(t, 2, completed)
	require.Equal(t, []uint32{10, 11}, order)
	require.Equal(t, 0, pending.Len())
}

func TestNonZerocopyRequestsCompleteUnconditionallyInFIFOOrder(t *testing.T) {
	pending := &txbatch.Queue{}
	var order []string
	pending.PushBack(&txbatch.Request{IsZcopy: false, Done: func(int, error) { order = append(order, "sync1") }})
	pending.PushBack(&txbatch.Request{IsZcopy: true, Seq: 5, Done: func(int, error) { order = append(order, "zc5") }})

	q := &fakeErrQueue{buffers: [][]byte{buildCompletion(t, 5, 5)}}
	r := NewReaper(Expected{Level: testLevel, Type: testType, Origin: testOrigin})

	completed, any := r.Drain(q, pending, func(err error) bool { return err == errAgain })
	require.True(t, any)
	require.Equal(t, 2, completed)
	require.Equal(t, []string{"sync1", "zc5"}, order)
}

func TestNoCompletionsIsNotReportedAsAny(t *testing.T) {
	pending := &txbatch.Queue{}
	q := &fakeErrQueue{}
	r := NewReaper(Expected{Level: testLevel, Type: testType, Origin: testOrigin})

	completed, any := r.Drain(q, pending, func(err error) bool { return err == errAgain })
	require.False(t, any)
	require.Equal(t, 0, completed)
}
