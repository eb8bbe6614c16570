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
	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/txbatch"
)

// PathEnv names the environment variable that points at the vendor
// transport library. If it is unset, Register declines to install the
// provider. If it is set but empty, DefaultLibName is used instead.
const PathEnv = "XLIOSOCK_PATH"

// DefaultLibName is used when PathEnv is set to the empty string.
const DefaultLibName = "libxliosock.so"

// Options configures the provider at the process level; it is the
// package-level counterpart to socket.Options; the Provider returned by
// Register copies the relevant fields down into every socket its Listen,
// Connect and Accept create.
type Options struct {
	RecvBufSize    int
	SendBufSize    int
	EnableRecvPipe bool // advisory; unused by this core

	EnableZerocopySend       bool
	EnableZerocopySendServer bool
	EnableZerocopySendClient bool
	EnableZerocopyRecv       bool
	ZerocopyThreshold        int // default 4096

	EnableQuickAck     bool
	EnablePlacementID  bool // advisory; unused by this core

	ZerocopyCmsgLevel int32
	ZerocopyCmsgType  int32

	PacketPoolSize int
	BufferPoolSize int

	MaxPollEvents int
}

// DefaultOptions returns the package defaults matching the documented
// configuration surface.
func DefaultOptions() Options {
	return Options{
		ZerocopyThreshold: txbatch.DefaultZerocopyThreshold,
		PacketPoolSize:    1024,
		BufferPoolSize:    4096,
		MaxPollEvents:     256,
	}
}

// zerocopySendForRole resolves the effective per-socket zero-copy-send switch for a
// server (isServer=true) or client socket, per the per-role enable flags.
func (o Options) zerocopySendForRole(isServer bool) bool {
	if !o.EnableZerocopySend {
		return false
	}
	if isServer {
		return o.EnableZerocopySendServer
	}
	return o.EnableZerocopySendClient
}

// socketOptions builds the per-socket Options passed to socket.Listen,
// socket.Connect and socket.Accept.
func (o Options) socketOptions(isServer bool) socket.Options {
	return socket.Options{
		RecvBufSize:        o.RecvBufSize,
		SendBufSize:        o.SendBufSize,
		EnableZeroCopySend: o.zerocopySendForRole(isServer),
		EnableZeroCopyRecv: o.EnableZerocopyRecv,
		ZerocopyCmsg:       txbatch.CmsgConsts{Level: o.ZerocopyCmsgLevel, Type: o.ZerocopyCmsgType},
		ZerocopyThresh:     o.ZerocopyThreshold,
		PacketPoolSize:     o.PacketPoolSize,
		BufferPoolSize:     o.BufferPoolSize,
	}
}
