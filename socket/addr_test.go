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
)

func TestSplitHostServiceIPv4(t *testing.T) {
	host, service, err := SplitHostService("127.0.0.1:9090")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, "9090", service)
}

func TestSplitHostServiceIPv6Brackets(t *testing.T) {
	host, service, err := SplitHostService("[::1]:9090")
	require.NoError(t, err)
	require.Equal(t, "::1", host)
	require.Equal(t, "9090", service)
}

func TestSplitHostServiceMalformed(t *testing.T) {
	_, _, err := SplitHostService("[::1")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, _, err = SplitHostService("")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestIsLoopbackAddrTrivialCases(t *testing.T) {
	require.True(t, IsLoopbackAddr(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")}))
	require.True(t, IsLoopbackAddr(&net.TCPAddr{IP: net.ParseIP("::1")}))
	require.False(t, IsLoopbackAddr(&net.TCPAddr{IP: net.ParseIP("8.8.8.8")}))
}
