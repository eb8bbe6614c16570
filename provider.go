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
	"errors"
	"sync"

	"github.com/cloudwego/xliosock/allocator"
	"github.com/cloudwego/xliosock/group"
	"github.com/cloudwego/xliosock/internal/xlog"
	"github.com/cloudwego/xliosock/socket"
	"github.com/cloudwego/xliosock/stack"
	"github.com/cloudwego/xliosock/zcreaper"
)

// Name is the provider name registered with the outer framework.
const Name = "xliosock"

// soEEOriginZerocopy mirrors SO_EE_ORIGIN_ZEROCOPY (value 5), the origin
// tag carried by a zero-copy completion on the error queue.
const soEEOriginZerocopy = 5

// ErrNotRegistered is returned by provider operations invoked before a
// successful Register call.
var ErrNotRegistered = errors.New("xliosock: provider not registered")

// Provider ties a loaded stack binding to the configured Options; it is
// the receiver for everything the outer framework's network-implementation
// interface calls into. Allocator is the pair registered with the stack.
// Register always registers allocator.Default and takes no other pair;
// assigning Allocator after Register does not re-register with the stack.
type Provider struct {
	Allocator allocator.Pair

	binding *stack.Binding
	opts    Options

	mu sync.Mutex
}

var (
	registerOnce sync.Mutex
	active       *Provider
)

// Register loads the vendor stack (declining per PathEnv's contract if
// unset), obtains its extended API, registers the allocator pair through
// it, and installs the resulting Provider as the active singleton.
// Registration occurs only if both load and stack-init succeed, matching
// the shared-object-constructor contract this provider stands in for.
func Register(opts Options) (*Provider, error) {
	binding, err := stack.Load(PathEnv, DefaultLibName)
	if err != nil {
		if err == stack.ErrNotConfigured {
			xlog.Warnf("xliosock: %s unset, provider declining to register", PathEnv)
		}
		return nil, err
	}
	return registerBinding(binding, opts)
}

// registerBinding does the actual singleton bookkeeping and allocator
// registration against an already-resolved binding. Split out from
// Register so tests can exercise it against stack.NewFakeBinding without
// touching the real dlopen path.
func registerBinding(binding *stack.Binding, opts Options) (*Provider, error) {
	registerOnce.Lock()
	defer registerOnce.Unlock()

	p := &Provider{
		Allocator: allocator.Default,
		binding:   binding,
		opts:      opts,
	}

	if binding.Ext != nil {
		if err := binding.Ext.RegisterAllocator(p.Allocator.Alloc, p.Allocator.Free); err != nil {
			stack.Unload(binding)
			return nil, err
		}
	}

	binding.MarkLoaded()
	active = p
	return p, nil
}

// Active returns the singleton installed by the last successful Register
// call, or nil if none is active.
func Active() *Provider {
	registerOnce.Lock()
	defer registerOnce.Unlock()
	return active
}

// Unregister tears the stack down. Safe to call more than once; a
// teardown after the handle has already gone null is a no-op, matching
// the process-wide state note that late stack-internal frees must not
// dereference a torn-down handle.
func (p *Provider) Unregister() error {
	registerOnce.Lock()
	defer registerOnce.Unlock()
	if p.binding == nil || !p.binding.IsLoaded() {
		return nil
	}
	stack.Unload(p.binding)
	if active == p {
		active = nil
	}
	return nil
}

// Listen creates a listening socket bound to addr using the server-role
// zero-copy policy.
func (p *Provider) Listen(addr string) (*socket.Socket, error) {
	if p.binding == nil {
		return nil, ErrNotRegistered
	}
	return socket.Listen(p.binding.Ops, p.binding.Ext, addr, p.opts.socketOptions(true))
}

// Connect creates a connected socket to addr using the client-role
// zero-copy policy.
func (p *Provider) Connect(addr string) (*socket.Socket, error) {
	if p.binding == nil {
		return nil, ErrNotRegistered
	}
	return socket.Connect(p.binding.Ops, p.binding.Ext, addr, p.opts.socketOptions(false))
}

// Accept accepts a connection on a listening socket created by Listen,
// applying the same role's socket options to the child.
func (p *Provider) Accept(listener *socket.Socket, isServer bool) (*socket.Socket, error) {
	if p.binding == nil {
		return nil, ErrNotRegistered
	}
	return listener.Accept(p.opts.socketOptions(isServer))
}

// NewGroup creates a socket group polling this provider's stack binding.
func (p *Provider) NewGroup() (*group.Group, error) {
	if p.binding == nil {
		return nil, ErrNotRegistered
	}
	expected := zcreaper.Expected{
		Level:  p.opts.ZerocopyCmsgLevel,
		Type:   p.opts.ZerocopyCmsgType,
		Origin: soEEOriginZerocopy,
	}
	return group.New(p.binding.Ops, expected, p.opts.MaxPollEvents)
}

// Binding exposes the underlying stack binding for callers that need
// direct access (e.g. custom option introspection).
func (p *Provider) Binding() *stack.Binding { return p.binding }
