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

// Package xliosock implements a TCP socket provider that interposes on a
// kernel-bypass, user-space transport stack loaded at runtime via the
// dynamic linker. It registers itself with the outer framework as one of
// several pluggable network implementations, alongside the framework's
// default POSIX and io_uring-based transports, and is only active when the
// vendor library's path is configured in the environment.
//
// The package ties together the stack binding (package stack), the packet
// and buffer pools (package poolslab), the receive cursor (package
// recvcursor), the transmit batcher and zero-copy completion reaper
// (packages txbatch and zcreaper), and the socket and group objects
// (packages socket and group) into the provider surface: Register, a
// package-level Options value, and the per-socket option accessors.
package xliosock
