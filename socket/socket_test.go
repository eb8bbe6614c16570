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

package socket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/txbatch"
)

func TestListenBindsAndEntersNonblock(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Listen(f, f, "127.0.0.1:9090", Options{EnableZeroCopySend: true})
	require.NoError(t, err)
	require.Greater(t, s.FD, 0)

	addr, err := f.GetLocalAddr(s.FD)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", addr.(*net.TCPAddr).IP.String())
}

func TestListenOnLoopbackDisablesZeroCopy(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Listen(f, f, "127.0.0.1:9090", Options{EnableZeroCopySend: true})
	require.NoError(t, err)
	require.False(t, s.ZcopySendEnabled)
	require.False(t, s.Batcher.ZerocopyEnabled)
}

func TestConnectNonLoopbackEnablesZeroCopyAndQueriesPD(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Connect(f, f, "10.0.0.5:9090", Options{EnableZeroCopySend: true})
	require.NoError(t, err)
	require.True(t, s.ZcopySendEnabled)
	require.True(t, s.Batcher.ZerocopyEnabled)

	pd, ok := s.ProtectionDomain()
	require.True(t, ok)
	require.NotZero(t, pd)
}

func TestAcceptInheritsParentZeroCopyAndPriority(t *testing.T) {
	f := stack.NewFake(true)
	parent, err := Listen(f, f, "10.0.0.5:9090", Options{EnableZeroCopySend: true, Priority: 3})
	require.NoError(t, err)
	parent.ZcopySendEnabled = true
	parent.Batcher.ZerocopyEnabled = true

	_, err = f.PushIncoming(parent.FD, &net.TCPAddr{IP: net.ParseIP("10.0.0.9"), Port: 5555})
	require.NoError(t, err)

	child, err := parent.Accept(Options{})
	require.NoError(t, err)
	require.True(t, child.ZcopySendEnabled)
	require.Equal(t, 3, child.Priority)

	pd, ok := child.ProtectionDomain()
	require.True(t, ok)
	require.NotZero(t, pd)
}

func TestCloseRejectsNonEmptyPendingQueue(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Connect(f, f, "10.0.0.5:9090", Options{})
	require.NoError(t, err)

	s.Batcher.Pending.PushBack(&txbatch.Request{})
	require.ErrorIs(t, s.Close(nil), ErrCloseWithPendingCompletions)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Connect(f, f, "10.0.0.5:9090", Options{})
	require.NoError(t, err)

	require.NoError(t, s.Close(nil))
	require.NoError(t, s.Close(nil))
}

func TestCloseReportsLeakedRefsViaCallback(t *testing.T) {
	f := stack.NewFake(true)
	s, err := Connect(f, f, "10.0.0.5:9090", Options{})
	require.NoError(t, err)

	_, err = f.Writev(s.FD, [][]byte{[]byte("hello")})
	require.NoError(t, err)

	var reported int
	require.NoError(t, s.Close(func(refcount int) { reported = refcount }))
	require.Zero(t, reported) // nothing was ever ingested into the cursor, so no leak to report
}

func TestListenFailsWithNoCandidateAddress(t *testing.T) {
	f := stack.NewFake(true)
	_, err := Listen(f, f, "not-an-address", Options{})
	require.Error(t, err)
}
