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
)

func TestZerocopySendForRoleRespectsMasterSwitch(t *testing.T) {
	o := Options{EnableZerocopySend: false, EnableZerocopySendServer: true, EnableZerocopySendClient: true}
	require.False(t, o.zerocopySendForRole(true))
	require.False(t, o.zerocopySendForRole(false))
}

func TestZerocopySendForRolePerRoleSwitches(t *testing.T) {
	o := Options{EnableZerocopySend: true, EnableZerocopySendServer: true, EnableZerocopySendClient: false}
	require.True(t, o.zerocopySendForRole(true))
	require.False(t, o.zerocopySendForRole(false))
}

func TestSocketOptionsKeepsSendAndRecvZeroCopyIndependent(t *testing.T) {
	recvOnly := Options{EnableZerocopyRecv: true}
	so := recvOnly.socketOptions(true)
	require.True(t, so.EnableZeroCopyRecv)
	require.False(t, so.EnableZeroCopySend)

	sendOnly := Options{EnableZerocopySend: true, EnableZerocopySendServer: true}
	so2 := sendOnly.socketOptions(true)
	require.True(t, so2.EnableZeroCopySend)
	require.False(t, so2.EnableZeroCopyRecv)

	neither := Options{}
	so3 := neither.socketOptions(true)
	require.False(t, so3.EnableZeroCopySend)
	require.False(t, so3.EnableZeroCopyRecv)
}

func TestDefaultOptionsMatchesDocumentedDefaults(t *testing.T) {
	o := DefaultOptions()
	require.Equal(t, 4096, o.ZerocopyThreshold)
	require.Equal(t, 1024, o.PacketPoolSize)
	require.Equal(t, 4096, o.BufferPoolSize)
	require.Equal(t, 256, o.MaxPollEvents)
}
