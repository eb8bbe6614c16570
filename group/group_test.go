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

package group

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/txbatch"
	"github.com/cloudwego/xliosock/zcreaper"
)

var errRemoveTest = errors.New("group_test: removed")

func newTestGroup(t *testing.T) (*Group, *stack.Fake) {
	t.Helper()
	f := stack.NewFake(true)
	g, err := New(f, zcreaper.Expected{Level: 0, Type: 11, Origin: 5}, 16)
	require.NoError(t, err)
	return g, f
}

func newTestSocket(t *testing.T, f *stack.Fake) *socket.Socket {
	t.Helper()
	s, err := socket.Connect(f, f, "127.0.0.1:9090", socket.Options{})
	require.NoError(t, err)
	return s
}

func TestPollWithNoEventsEmitsNothing(t *testing.T) {
	g, f := newTestGroup(t)
	s := newTestSocket(t, f)
	require.NoError(t, g.Add(s, func(*socket.Socket) {}))

	out := make([]*socket.Socket, 4)
	n := g.Poll(out)
	require.Equal(t, 0, n)
}

func TestRemoveAbortsOutstandingRequests(t *testing.T) {
	g, f := newTestGroup(t)
	s := newTestSocket(t, f)
	require.NoError(t, g.Add(s, func(*socket.Socket) {}))

	var aborted error
	s.Batcher.Waiting.PushBack(&txbatch.Request{Done: func(_ int, err error) {
		aborted = err
	}})

	require.NoError(t, g.Remove(s, errRemoveTest))
	require.Equal(t, 0, g.PendingLen())
	require.ErrorIs(t, aborted, errRemoveTest)
}

func TestAddRegistersWithEpoll(t *testing.T) {
	g, f := newTestGroup(t)
	s := newTestSocket(t, f)
	require.NoError(t, g.Add(s, nil))
	require.Contains(t, g.members, s.FD)
}
