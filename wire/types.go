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

// Package wire holds the raw scatter/gather and control-message structures
// shared between the transmit batcher, the zero-copy reaper and the stack
// binding. These mirror the kernel ABI closely enough to be passed straight
// through sendmsg/recvmsg; higher layers never see them.
package wire

import "unsafe"

// Iovec is a single scatter/gather element, laid out for the syscall ABI.
type Iovec struct {
	Base uintptr
	Len  uint64
}

// Set points iov at b without copying.
func (iov *Iovec) Set(b []byte) {
	iov.Len = uint64(len(b))
	if iov.Len > 0 {
		iov.Base = uintptr(unsafe.Pointer(&b[0]))
	} else {
		iov.Base = 0
	}
}

// Msghdr mirrors struct msghdr as consumed by sendmsg/recvmsg.
type Msghdr struct {
	Name       *byte
	Namelen    uint32
	_          uint32
	Iov        *Iovec
	Iovlen     uint64
	Control    *byte
	Controllen uint64
	Flags      int32
	_          int32
}

// MemKey is one entry of a per-iov memory-key control message block, used to
// grant the stack zero-copy access to pre-registered memory regions.
type MemKey struct {
	Key   uint32
	Flags uint32
}

// CmsgHeader mirrors struct cmsghdr.
type CmsgHeader struct {
	Len   uint64
	Level int32
	Type  int32
}

// ExtendedErr mirrors struct sock_extended_err, the payload of an
// MSG_ERRQUEUE completion notification.
type ExtendedErr struct {
	Errno  uint32
	Origin uint8
	Type   uint8
	Code   uint8
	Pad    uint8
	Info   uint32
	Data   uint32
}
