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

package xliosock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/stack"
)

func TestSetRecvBufSizeEnforcesFloor(t *testing.T) {
	f := stack.NewFake(true)
	s, err := socket.Connect(f, f, "10.0.0.1:9090", socket.Options{})
	require.NoError(t, err)

	h := Handle(f, s)
	require.NoError(t, h.SetRecvBufSize(1))
	got, err := h.RecvBufSize()
	require.NoError(t, err)
	require.Equal(t, minRecvBuf, got)
}

func TestSetSendBufSizeEnforcesFloor(t *testing.T) {
	f := stack.NewFake(true)
	s, err := socket.Connect(f, f, "10.0.0.1:9090", socket.Options{})
	require.NoError(t, err)

	h := Handle(f, s)
	require.NoError(t, h.SetSendBufSize(1))
	got, err := h.SendBufSize()
	require.NoError(t, err)
	require.Equal(t, minSendBuf, got)
}

func TestSetPriorityRoundTrips(t *testing.T) {
	f := stack.NewFake(true)
	s, err := socket.Connect(f, f, "10.0.0.1:9090", socket.Options{})
	require.NoError(t, err)

	h := Handle(f, s)
	require.NoError(t, h.SetPriority(6))
	got, err := h.Priority()
	require.NoError(t, err)
	require.Equal(t, 6, got)
}
