/*
 * Copyright 2024 CloudWeGo Authors
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

// Package unsafeslice builds Go byte slices over memory the module does not
// own, such as a packet payload living inside the transport stack's packet
// pool. The slices are only valid for as long as the backing memory is,
// which callers must track themselves (e.g. via packet refcounts).
package unsafeslice

import "unsafe"

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// FromPointer builds a []byte of the given length backed by p, without copying.
// p must remain valid and unmoved for the lifetime of the returned slice.
func FromPointer(p unsafe.Pointer, length int) []byte {
	if length == 0 {
		return nil
	}
	var b []byte
	h := (*sliceHeader)(unsafe.Pointer(&b))
	h.Data = p
	h.Len = length
	h.Cap = length
	return b
}

// BaseOf returns the address of the first byte of b, or nil if b is empty.
func BaseOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
