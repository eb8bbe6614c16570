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
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/xliosock/stack"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	f := stack.NewFake(true)
	p, err := registerBinding(stack.NewFakeBinding(f), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Unregister() })
	return p
}

func TestRegisterBindingInstallsActiveSingleton(t *testing.T) {
	p := newTestProvider(t)
	require.Same(t, p, Active())
}

func TestUnregisterClearsActiveSingleton(t *testing.T) {
	p := newTestProvider(t)
	require.NoError(t, p.Unregister())
	require.Nil(t, Active())
	require.NoError(t, p.Unregister()) // idempotent
}

func TestProviderListenConnectAccept(t *testing.T) {
	p := newTestProvider(t)

	ln, err := p.Listen("10.0.0.1:9090")
	require.NoError(t, err)

	_, err = ln.Accept(p.opts.socketOptions(true))
	require.Error(t, err) // empty backlog, stack.Fake reports EAGAIN

	f := p.binding.Ops.(*stack.Fake)
	_, err = f.PushIncoming(ln.FD, &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 4321})
	require.NoError(t, err)

	child, err := p.Accept(ln, true)
	require.NoError(t, err)
	require.Greater(t, child.FD, 0)

	cli, err := p.Connect("10.0.0.3:9090")
	require.NoError(t, err)
	require.Greater(t, cli.FD, 0)
}

func TestProviderNewGroup(t *testing.T) {
	p := newTestProvider(t)
	g, err := p.NewGroup()
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestProviderOperationsFailBeforeRegister(t *testing.T) {
	p := &Provider{}
	_, err := p.Listen("10.0.0.1:9090")
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = p.Connect("10.0.0.1:9090")
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = p.NewGroup()
	require.ErrorIs(t, err, ErrNotRegistered)
}
