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

package stack

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeSocketWritevReadv(t *testing.T) {
	f := NewFake(true)
	fd, err := f.Socket(2, 1, 0)
	require.NoError(t, err)

	n, err := f.Writev(fd, [][]byte{[]byte("hello "), []byte("world")})
	require.NoError(t, err)
	require.Equal(t, 11, n)

	buf := make([]byte, 11)
	n, err = f.Readv(fd, [][]byte{buf})
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "hello world", string(buf))
}

func TestFakeAcceptFromPushedIncoming(t *testing.T) {
	f := NewFake(true)
	listenerFd, _ := f.Socket(2, 1, 0)
	require.NoError(t, f.Listen(listenerFd, 16))

	peer := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4000}
	_, err := f.PushIncoming(listenerFd, peer)
	require.NoError(t, err)

	fd, addr, err := f.Accept(listenerFd)
	require.NoError(t, err)
	require.Equal(t, peer, addr)
	require.Greater(t, fd, 0)
}

func TestFakeAcceptEmptyBacklogReturnsAgain(t *testing.T) {
	f := NewFake(true)
	listenerFd, _ := f.Socket(2, 1, 0)
	require.NoError(t, f.Listen(listenerFd, 16))

	_, _, err := f.Accept(listenerFd)
	require.ErrorIs(t, err, errEAGAIN)
}

func TestFakeExtAPIUnavailableWhenDisabled(t *testing.T) {
	f := NewFake(false)
	fd, _ := f.Socket(2, 1, 0)
	_, _, err := f.RecvZcopy(fd, make([]byte, 16))
	require.ErrorIs(t, err, ErrAPIUnavailable)

	_, ok := f.ProtectionDomain(fd)
	require.False(t, ok)
}

func TestFakeInjectError(t *testing.T) {
	f := NewFake(true)
	fd, _ := f.Socket(2, 1, 0)
	sentinel := net.ErrClosed
	f.InjectError(fd, sentinel)

	err := f.Bind(fd, &net.TCPAddr{})
	require.ErrorIs(t, err, sentinel)

	// The injected error is consumed; the next call succeeds.
	err = f.Bind(fd, &net.TCPAddr{})
	require.NoError(t, err)
}
