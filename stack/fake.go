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
	"bytes"
	"errors"
	"net"
	"sync"

	"github.com/cloudwego/xliosock/wire"
)

// Fake is an in-memory Ops+ExtAPI implementation for tests that never
// touches a real socket or dlopen'd library. Bytes written to an fd with
// Writev are queued on a buffered channel of that same fd and read back by
// Readv; everything else is bookkeeping.
type Fake struct {
	mu       sync.Mutex
	nextFd   int
	socks    map[int]*fakeSocket
	wantErr  map[int]error // fd -> forced error for the next matching op
	apiAvail bool

	registeredAlloc func(int) []byte
	registeredFree  func([]byte)
}

type fakeSocket struct {
	fd       int
	domain   int
	typ      int
	local    net.Addr
	peer     net.Addr
	listener bool
	nonblock bool
	backlog  chan *fakeSocket
	rx       chan []byte
	rxBuf    bytes.Buffer
	closed   bool
	opts     map[int]int
	zcSeqs   []uint32 // outstanding sendmsg sequence numbers awaiting completion
}

// NewFake creates an empty fake binding. apiAvailable controls whether
// ExtAPI calls succeed, modeling whether the vendor stack exposed its
// extended API.
func NewFake(apiAvailable bool) *Fake {
	return &Fake{
		socks:    make(map[int]*fakeSocket),
		wantErr:  make(map[int]error),
		apiAvail: apiAvailable,
	}
}

// NewFakeBinding wraps a Fake as a Binding, the test counterpart of the
// dlopen-backed Load.
func NewFakeBinding(f *Fake) *Binding {
	return &Binding{Ops: f, Ext: f}
}

// InjectError forces the next Bind, Connect, Accept or SendmsgIov issued
// against fd to fail with err; other operations ignore it.
func (f *Fake) InjectError(fd int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wantErr[fd] = err
}

func (f *Fake) takeErr(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.wantErr[fd]; ok {
		delete(f.wantErr, fd)
		return err
	}
	return nil
}

func (f *Fake) Socket(domain, typ, proto int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFd++
	fd := f.nextFd
	f.socks[fd] = &fakeSocket{
		fd:     fd,
		domain: domain,
		typ:    typ,
		rx:     make(chan []byte, 64),
		opts:   make(map[int]int),
	}
	return fd, nil
}

func (f *Fake) sock(fd int) (*fakeSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.socks[fd]
	if !ok {
		return nil, errors.New("stack/fake: no such fd")
	}
	return s, nil
}

func (f *Fake) Bind(fd int, addr net.Addr) error {
	if err := f.takeErr(fd); err != nil {
		return err
	}
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	s.local = addr
	return nil
}

func (f *Fake) Listen(fd, backlog int) error {
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	s.listener = true
	s.backlog = make(chan *fakeSocket, backlog)
	return nil
}

// Connect records addr as fd's peer and succeeds whether or not anything
// listens there (only an injected error makes it fail). It's a
// simplification over a real three-way handshake: tests drive acceptance
// explicitly via PushIncoming.
func (f *Fake) Connect(fd int, addr net.Addr) error {
	if err := f.takeErr(fd); err != nil {
		return err
	}
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	s.peer = addr
	return nil
}

// PushIncoming enqueues a pre-accepted peer socket on listenerFd's backlog,
// letting tests drive Accept deterministically without a real Connect.
func (f *Fake) PushIncoming(listenerFd int, peer net.Addr) (int, error) {
	ls, err := f.sock(listenerFd)
	if err != nil {
		return -1, err
	}
	nfd, _ := f.Socket(ls.domain, ls.typ, 0)
	ns, _ := f.sock(nfd)
	ns.peer = peer
	ns.local = ls.local
	select {
	case ls.backlog <- ns:
	default:
		return -1, errors.New("stack/fake: backlog full")
	}
	return nfd, nil
}

func (f *Fake) Accept(fd int) (int, net.Addr, error) {
	if err := f.takeErr(fd); err != nil {
		return -1, nil, err
	}
	s, err := f.sock(fd)
	if err != nil {
		return -1, nil, err
	}
	select {
	case ns := <-s.backlog:
		return ns.fd, ns.peer, nil
	default:
		return -1, nil, errEAGAIN
	}
}

func (f *Fake) Close(fd int) error {
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	f.mu.Lock()
	s.closed = true
	delete(f.socks, fd)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Readv(fd int, bufs [][]byte) (int, error) {
	s, err := f.sock(fd)
	if err != nil {
		return -1, err
	}
	total := 0
	for _, b := range bufs {
		for len(b) > 0 {
			if s.rxBuf.Len() == 0 {
				select {
				case chunk := <-s.rx:
					s.rxBuf.Write(chunk)
				default:
					if total == 0 {
						return 0, errEAGAIN
					}
					return total, nil
				}
			}
			n, _ := s.rxBuf.Read(b)
			total += n
			b = b[n:]
		}
	}
	return total, nil
}

func (f *Fake) Writev(fd int, bufs [][]byte) (int, error) {
	s, err := f.sock(fd)
	if err != nil {
		return -1, err
	}
	total := 0
	for _, b := range bufs {
		cp := make([]byte, len(b))
		copy(cp, b)
		s.rx <- cp
		total += len(b)
	}
	return total, nil
}

func (f *Fake) Recv(fd int, buf []byte, flags int) (int, error) {
	bufs := [][]byte{buf}
	return f.Readv(fd, bufs)
}

func (f *Fake) SendmsgIov(fd int, iovs []wire.Iovec, control []byte, flags int) (int, error) {
	if err := f.takeErr(fd); err != nil {
		return -1, err
	}
	s, err := f.sock(fd)
	if err != nil {
		return -1, err
	}
	total := 0
	for _, iov := range iovs {
		total += int(iov.Len)
	}
	_ = s
	return total, nil
}

func (f *Fake) RecvErrQueue(fd int, control []byte) ([]byte, error) {
	return nil, errEAGAIN
}

func (f *Fake) EpollCreate() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFd++
	return f.nextFd, nil
}

func (f *Fake) EpollCtl(epfd int, op EpollOp, fd int, ptr uintptr) error {
	return nil
}

func (f *Fake) EpollWait(epfd int, events []Event, timeoutMs int) (int, error) {
	return 0, nil
}

func (f *Fake) SetNonblock(fd int, nonblocking bool) error {
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	s.nonblock = nonblocking
	return nil
}

func (f *Fake) GetsockoptInt(fd, level, opt int) (int, error) {
	s, err := f.sock(fd)
	if err != nil {
		return 0, err
	}
	return s.opts[opt], nil
}

func (f *Fake) SetsockoptInt(fd, level, opt, value int) error {
	s, err := f.sock(fd)
	if err != nil {
		return err
	}
	s.opts[opt] = value
	return nil
}

func (f *Fake) GetLocalAddr(fd int) (net.Addr, error) {
	s, err := f.sock(fd)
	if err != nil {
		return nil, err
	}
	return s.local, nil
}

func (f *Fake) GetPeerAddr(fd int) (net.Addr, error) {
	s, err := f.sock(fd)
	if err != nil {
		return nil, err
	}
	return s.peer, nil
}

func (f *Fake) Resolve(host, service string, passive bool) ([]net.Addr, error) {
	return []net.Addr{&net.TCPAddr{IP: net.ParseIP(host)}}, nil
}

// ExtAPI

func (f *Fake) RecvZcopy(fd int, into []byte) (int, []PacketHandle, error) {
	if !f.apiAvail {
		return 0, nil, ErrAPIUnavailable
	}
	n, err := f.Recv(fd, into, 0)
	if err != nil {
		return 0, nil, err
	}
	return n, []PacketHandle{{PacketID: uintptr(fd)}}, nil
}

func (f *Fake) ReleasePackets(fd int, packets []PacketHandle) error {
	if !f.apiAvail {
		return ErrAPIUnavailable
	}
	return nil
}

func (f *Fake) RegisterAllocator(alloc func(int) []byte, free func([]byte)) error {
	if !f.apiAvail {
		return ErrAPIUnavailable
	}
	f.registeredAlloc = alloc
	f.registeredFree = free
	return nil
}

func (f *Fake) ProtectionDomain(fd int) (uintptr, bool) {
	if !f.apiAvail {
		return 0, false
	}
	return uintptr(fd) + 1, true
}

var errEAGAIN = errors.New("stack/fake: resource temporarily unavailable")
