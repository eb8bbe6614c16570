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

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>
#include <errno.h>
#include <sys/socket.h>
#include <sys/uio.h>
#include <sys/epoll.h>
#include <netdb.h>
#include <fcntl.h>
#include <unistd.h>

// Function-pointer table resolved by symbol name from the dlopen'd
// transport library. Every field is typed exactly like its libc
// counterpart so a conforming vendor library can be dropped in unmodified.
typedef struct {
	int      (*socket)(int, int, int);
	int      (*bind)(int, const struct sockaddr *, socklen_t);
	int      (*listen)(int, int);
	int      (*connect)(int, const struct sockaddr *, socklen_t);
	int      (*accept)(int, struct sockaddr *, socklen_t *);
	int      (*close)(int);
	ssize_t  (*readv)(int, const struct iovec *, int);
	ssize_t  (*writev)(int, const struct iovec *, int);
	ssize_t  (*recv)(int, void *, size_t, int);
	ssize_t  (*recvmsg)(int, struct msghdr *, int);
	ssize_t  (*sendmsg)(int, const struct msghdr *, int);
	int      (*epoll_create1)(int);
	int      (*epoll_ctl)(int, int, int, struct epoll_event *);
	int      (*epoll_wait)(int, struct epoll_event *, int, int);
	int      (*fcntl)(int, int, ...);
	int      (*ioctl)(int, unsigned long, ...);
	int      (*getsockopt)(int, int, int, void *, socklen_t *);
	int      (*setsockopt)(int, int, int, const void *, socklen_t);
	int      (*getsockname)(int, struct sockaddr *, socklen_t *);
	int      (*getpeername)(int, struct sockaddr *, socklen_t *);
	int      (*getaddrinfo)(const char *, const char *, const struct addrinfo *, struct addrinfo **);
	void     (*freeaddrinfo)(struct addrinfo *);
} xliosock_ops_t;

static xliosock_ops_t g_ops;

#define XLIOSOCK_RESOLVE(sym) \
	(*(void **)(&g_ops.sym) = dlsym(handle, #sym))

static int xliosock_resolve(void *handle) {
	XLIOSOCK_RESOLVE(socket);
	XLIOSOCK_RESOLVE(bind);
	XLIOSOCK_RESOLVE(listen);
	XLIOSOCK_RESOLVE(connect);
	XLIOSOCK_RESOLVE(accept);
	XLIOSOCK_RESOLVE(close);
	XLIOSOCK_RESOLVE(readv);
	XLIOSOCK_RESOLVE(writev);
	XLIOSOCK_RESOLVE(recv);
	XLIOSOCK_RESOLVE(recvmsg);
	XLIOSOCK_RESOLVE(sendmsg);
	XLIOSOCK_RESOLVE(epoll_create1);
	XLIOSOCK_RESOLVE(epoll_ctl);
	XLIOSOCK_RESOLVE(epoll_wait);
	XLIOSOCK_RESOLVE(fcntl);
	XLIOSOCK_RESOLVE(ioctl);
	XLIOSOCK_RESOLVE(getsockopt);
	XLIOSOCK_RESOLVE(setsockopt);
	XLIOSOCK_RESOLVE(getsockname);
	XLIOSOCK_RESOLVE(getpeername);
	XLIOSOCK_RESOLVE(getaddrinfo);
	XLIOSOCK_RESOLVE(freeaddrinfo);

	if (!g_ops.socket || !g_ops.bind || !g_ops.listen || !g_ops.connect ||
	    !g_ops.accept || !g_ops.close || !g_ops.readv || !g_ops.writev ||
	    !g_ops.recv || !g_ops.recvmsg || !g_ops.sendmsg ||
	    !g_ops.epoll_create1 || !g_ops.epoll_ctl || !g_ops.epoll_wait ||
	    !g_ops.fcntl || !g_ops.ioctl || !g_ops.getsockopt ||
	    !g_ops.setsockopt || !g_ops.getsockname || !g_ops.getpeername ||
	    !g_ops.getaddrinfo || !g_ops.freeaddrinfo) {
		return -1;
	}
	return 0;
}

static int xliosock_socket(int d, int t, int p) { return g_ops.socket(d, t, p); }
static int xliosock_bind(int fd, const struct sockaddr *sa, socklen_t l) { return g_ops.bind(fd, sa, l); }
static int xliosock_listen(int fd, int backlog) { return g_ops.listen(fd, backlog); }
static int xliosock_connect(int fd, const struct sockaddr *sa, socklen_t l) { return g_ops.connect(fd, sa, l); }
static int xliosock_accept(int fd, struct sockaddr *sa, socklen_t *l) { return g_ops.accept(fd, sa, l); }
static int xliosock_close(int fd) { return g_ops.close(fd); }
static ssize_t xliosock_readv(int fd, const struct iovec *iov, int n) { return g_ops.readv(fd, iov, n); }
static ssize_t xliosock_writev(int fd, const struct iovec *iov, int n) { return g_ops.writev(fd, iov, n); }
static ssize_t xliosock_recv(int fd, void *buf, size_t n, int flags) { return g_ops.recv(fd, buf, n, flags); }
static ssize_t xliosock_recvmsg(int fd, struct msghdr *msg, int flags) { return g_ops.recvmsg(fd, msg, flags); }
static ssize_t xliosock_sendmsg(int fd, const struct msghdr *msg, int flags) { return g_ops.sendmsg(fd, msg, flags); }
static int xliosock_epoll_create1(int flags) { return g_ops.epoll_create1(flags); }
static int xliosock_epoll_ctl(int epfd, int op, int fd, struct epoll_event *ev) { return g_ops.epoll_ctl(epfd, op, fd, ev); }
static int xliosock_epoll_wait(int epfd, struct epoll_event *ev, int max, int timeout) { return g_ops.epoll_wait(epfd, ev, max, timeout); }
static int xliosock_fcntl_getfl(int fd) { return g_ops.fcntl(fd, F_GETFL); }
static int xliosock_fcntl_setfl(int fd, int flags) { return g_ops.fcntl(fd, F_SETFL, flags); }
static int xliosock_getsockopt(int fd, int level, int opt, void *val, socklen_t *len) { return g_ops.getsockopt(fd, level, opt, val, len); }
static int xliosock_setsockopt(int fd, int level, int opt, const void *val, socklen_t len) { return g_ops.setsockopt(fd, level, opt, val, len); }
static int xliosock_getsockname(int fd, struct sockaddr *sa, socklen_t *l) { return g_ops.getsockname(fd, sa, l); }
static int xliosock_getpeername(int fd, struct sockaddr *sa, socklen_t *l) { return g_ops.getpeername(fd, sa, l); }
static int xliosock_ioctl_cmsg(int fd, struct cmsghdr *cmsg, unsigned long len) {
	return g_ops.ioctl(fd, len, cmsg);
}

// get_api retrieves the vendor extended API pointer via a sentinel-fd
// getsockopt query, as the stack does not expose it any other way.
static void *xliosock_get_api(int sentinel_fd, int level, int optname) {
	void *api = NULL;
	socklen_t len = sizeof(api);
	int rc = g_ops.getsockopt(sentinel_fd, level, optname, &api, &len);
	if (rc < 0) {
		return NULL;
	}
	return api;
}

// get_pd queries the per-fd RDMA protection-domain handle the same way:
// a plain getsockopt, but against the real socket fd rather than the
// sentinel used for the API table itself.
static void *xliosock_get_pd(int fd, int level, int optname) {
	void *pd = NULL;
	socklen_t len = sizeof(pd);
	int rc = g_ops.getsockopt(fd, level, optname, &pd, &len);
	if (rc < 0) {
		return NULL;
	}
	return pd;
}

// Extended API: zero-copy receive and the allocator-registration ioctl.
// Variable-length packet records use a one-element flexible array member,
// matching the vendor's own layout; xliosock_ext_packet_stride computes
// the real per-record size from sz_iov.
typedef struct {
	void         *packet_id;
	size_t        sz_iov;
	struct iovec  iov[1];
} xliosock_zc_packet_t;

typedef struct {
	size_t               n_packet_num;
	xliosock_zc_packet_t pkts[1];
} xliosock_zc_packets_t;

typedef struct {
	ssize_t (*recvfrom_zcopy)(int, void *, size_t, int *, struct sockaddr *, socklen_t *);
	int     (*recvfrom_zcopy_free_packets)(int, xliosock_zc_packet_t *, size_t);
	int     (*ioctl)(struct cmsghdr *, size_t);
} xliosock_ext_api_t;

static ssize_t xliosock_ext_recvfrom_zcopy(xliosock_ext_api_t *api, int fd, void *buf, size_t len, int *flags) {
	return api->recvfrom_zcopy(fd, buf, len, flags, NULL, NULL);
}

static int xliosock_ext_free_packets(xliosock_ext_api_t *api, int fd, xliosock_zc_packet_t *pkt, size_t count) {
	return api->recvfrom_zcopy_free_packets(fd, pkt, count);
}

static size_t xliosock_ext_packet_stride(size_t sz_iov) {
	return sizeof(xliosock_zc_packet_t) - sizeof(struct iovec) + sz_iov * sizeof(struct iovec);
}

#define XLIOSOCK_IOCTL_USER_ALLOC 1
#define XLIOSOCK_IOCTL_ALLOC_RX (1 << 1)

typedef struct __attribute__((packed)) {
	uint8_t  flags;
	void    *(*alloc_func)(size_t);
	void     (*free_func)(void *);
} xliosock_alloc_ioctl_data_t;

extern void *goXliosockAlloc(size_t size);
extern void goXliosockFree(void *ptr);

static int xliosock_ext_register_allocator(xliosock_ext_api_t *api) {
	char cbuf[CMSG_SPACE(sizeof(xliosock_alloc_ioctl_data_t))];
	struct cmsghdr *cmsg = (struct cmsghdr *)cbuf;
	xliosock_alloc_ioctl_data_t data;

	cmsg->cmsg_level = SOL_SOCKET;
	cmsg->cmsg_type = XLIOSOCK_IOCTL_USER_ALLOC;
	cmsg->cmsg_len = CMSG_LEN(sizeof(data));

	data.flags = XLIOSOCK_IOCTL_ALLOC_RX;
	data.alloc_func = goXliosockAlloc;
	data.free_func = goXliosockFree;
	memcpy(CMSG_DATA(cmsg), &data, sizeof(data));

	return api->ioctl(cmsg, cmsg->cmsg_len);
}
*/
import "C"

import (
	"errors"
	"net"
	"os"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/cloudwego/xliosock/wire"
)

// dlBinding is the real dlopen-backed Ops implementation. Only one may be
// active per process: the underlying C function table is a process-wide
// global, matching the vendor library's own singleton assumptions.
type dlBinding struct {
	handle unsafe.Pointer
	extAPI *C.xliosock_ext_api_t
}

// Vendor-assigned socket option numbers used to fetch the extended API
// table and a per-socket protection-domain handle. The real numbers live
// outside the portable socket-option namespace; -2 as a sentinel fd
// (rather than a real socket) is the vendor library's own convention for
// a process-wide query that isn't tied to any one connection.
const (
	sentinelExtAPIFd = -2
	soGetExtAPI      = 2900
	soProtectionDom  = 2901

	msgZcopyFlag = 0x8000000 // set in *flags by recvfrom_zcopy on success
)

// registered allocator callbacks, invoked by the vendor library from
// whatever internal thread services its own memory pool; guarded
// independently of the single-threaded-per-group contract the rest of
// this package assumes.
var (
	extAllocMu sync.Mutex
	extAllocFn func(int) []byte
	extFreeFn  func([]byte)
	extPinned  = map[uintptr]pinnedBuf{}
)

type pinnedBuf struct {
	buf    []byte
	pinner *runtime.Pinner
}

//export goXliosockAlloc
func goXliosockAlloc(size C.size_t) unsafe.Pointer {
	extAllocMu.Lock()
	fn := extAllocFn
	extAllocMu.Unlock()
	if fn == nil || size == 0 {
		return nil
	}
	buf := fn(int(size))
	if len(buf) == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&buf[0])
	p := &runtime.Pinner{}
	p.Pin(ptr)

	extAllocMu.Lock()
	extPinned[uintptr(ptr)] = pinnedBuf{buf: buf, pinner: p}
	extAllocMu.Unlock()
	return ptr
}

//export goXliosockFree
func goXliosockFree(ptr unsafe.Pointer) {
	extAllocMu.Lock()
	entry, ok := extPinned[uintptr(ptr)]
	if ok {
		delete(extPinned, uintptr(ptr))
	}
	fn := extFreeFn
	extAllocMu.Unlock()
	if !ok {
		return
	}
	entry.pinner.Unpin()
	if fn != nil {
		fn(entry.buf)
	}
}

// Load resolves pathEnv from the environment, dlopens the named library (or
// defaultPath if the variable is set but empty), and binds every required
// symbol. It returns ErrNotConfigured if pathEnv is unset so the provider
// can decline registration, per the declared-by-environment contract.
func Load(pathEnv, defaultPath string) (*Binding, error) {
	raw, set := os.LookupEnv(pathEnv)
	if !set {
		return nil, ErrNotConfigured
	}
	path := raw
	if path == "" {
		path = defaultPath
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW)
	if handle == nil {
		return nil, errors.New("stack: dlopen failed: " + C.GoString(C.dlerror()))
	}
	if C.xliosock_resolve(handle) != 0 {
		C.dlclose(handle)
		return nil, errors.New("stack: failed to resolve one or more required symbols")
	}

	b := &dlBinding{handle: handle}
	runtime.SetFinalizer(b, (*dlBinding).unload)
	return &Binding{Ops: b, Ext: b}, nil
}

func (b *dlBinding) unload() {
	if b.handle != nil {
		// Frees issued by the library from here on are dropped, not
		// returned to the registered allocator.
		extAllocMu.Lock()
		extFreeFn = nil
		extAllocMu.Unlock()
		C.dlclose(b.handle)
		b.handle = nil
	}
}

// Unload tears the binding down explicitly; Provider.Unregister in
// provider.go calls this. Safe to call more than once.
func Unload(bind *Binding) {
	if db, ok := bind.Ops.(*dlBinding); ok {
		db.unload()
	}
}

func errnoOrNil(rc C.int) error {
	if rc < 0 {
		return syscall.Errno(C.int(*C.__errno_location()))
	}
	return nil
}

func (b *dlBinding) Socket(domain, typ, proto int) (int, error) {
	fd := C.xliosock_socket(C.int(domain), C.int(typ), C.int(proto))
	if fd < 0 {
		return -1, errnoOrNil(fd)
	}
	return int(fd), nil
}

func (b *dlBinding) Bind(fd int, addr net.Addr) error {
	sa, salen, err := sockaddrOf(addr)
	if err != nil {
		return err
	}
	rc := C.xliosock_bind(C.int(fd), (*C.struct_sockaddr)(unsafe.Pointer(&sa[0])), C.socklen_t(salen))
	return errnoOrNil(rc)
}

func (b *dlBinding) Listen(fd, backlog int) error {
	return errnoOrNil(C.xliosock_listen(C.int(fd), C.int(backlog)))
}

func (b *dlBinding) Connect(fd int, addr net.Addr) error {
	sa, salen, err := sockaddrOf(addr)
	if err != nil {
		return err
	}
	rc := C.xliosock_connect(C.int(fd), (*C.struct_sockaddr)(unsafe.Pointer(&sa[0])), C.socklen_t(salen))
	return errnoOrNil(rc)
}

func (b *dlBinding) Accept(fd int) (int, net.Addr, error) {
	var sa [128]byte
	salen := C.socklen_t(len(sa))
	newfd := C.xliosock_accept(C.int(fd), (*C.struct_sockaddr)(unsafe.Pointer(&sa[0])), &salen)
	if newfd < 0 {
		return -1, nil, errnoOrNil(newfd)
	}
	return int(newfd), addrFromSockaddr(sa[:salen]), nil
}

func (b *dlBinding) Close(fd int) error {
	return errnoOrNil(C.xliosock_close(C.int(fd)))
}

func (b *dlBinding) Readv(fd int, bufs [][]byte) (int, error) {
	iovs := make([]C.struct_iovec, 0, len(bufs))
	for _, buf := range bufs {
		if len(buf) == 0 {
			continue
		}
		iovs = append(iovs, C.struct_iovec{iov_base: unsafe.Pointer(&buf[0]), iov_len: C.size_t(len(buf))})
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n := C.xliosock_readv(C.int(fd), &iovs[0], C.int(len(iovs)))
	if n < 0 {
		return -1, errnoOrNil(C.int(n))
	}
	return int(n), nil
}

func (b *dlBinding) Writev(fd int, bufs [][]byte) (int, error) {
	iovs := make([]C.struct_iovec, 0, len(bufs))
	for _, buf := range bufs {
		if len(buf) == 0 {
			continue
		}
		iovs = append(iovs, C.struct_iovec{iov_base: unsafe.Pointer(&buf[0]), iov_len: C.size_t(len(buf))})
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n := C.xliosock_writev(C.int(fd), &iovs[0], C.int(len(iovs)))
	if n < 0 {
		return -1, errnoOrNil(C.int(n))
	}
	return int(n), nil
}

func (b *dlBinding) Recv(fd int, buf []byte, flags int) (int, error) {
	var base unsafe.Pointer
	if len(buf) > 0 {
		base = unsafe.Pointer(&buf[0])
	}
	n := C.xliosock_recv(C.int(fd), base, C.size_t(len(buf)), C.int(flags))
	if n < 0 {
		return -1, errnoOrNil(C.int(n))
	}
	return int(n), nil
}

func (b *dlBinding) SendmsgIov(fd int, iovs []wire.Iovec, control []byte, flags int) (int, error) {
	cIovs := make([]C.struct_iovec, len(iovs))
	for i, iov := range iovs {
		cIovs[i] = C.struct_iovec{iov_base: unsafe.Pointer(iov.Base), iov_len: C.size_t(iov.Len)}
	}
	var msg C.struct_msghdr
	if len(cIovs) > 0 {
		msg.msg_iov = &cIovs[0]
		msg.msg_iovlen = C.size_t(len(cIovs))
	}
	if len(control) > 0 {
		msg.msg_control = unsafe.Pointer(&control[0])
		msg.msg_controllen = C.socklen_t(len(control))
	}
	n := C.xliosock_sendmsg(C.int(fd), &msg, C.int(flags))
	if n < 0 {
		return -1, errnoOrNil(C.int(n))
	}
	return int(n), nil
}

func (b *dlBinding) RecvErrQueue(fd int, control []byte) ([]byte, error) {
	var msg C.struct_msghdr
	msg.msg_control = unsafe.Pointer(&control[0])
	msg.msg_controllen = C.socklen_t(len(control))
	n := C.xliosock_recvmsg(C.int(fd), &msg, C.int(unixMsgErrqueue))
	if n < 0 {
		return nil, errnoOrNil(C.int(n))
	}
	return control[:msg.msg_controllen], nil
}

func (b *dlBinding) EpollCreate() (int, error) {
	fd := C.xliosock_epoll_create1(0)
	if fd < 0 {
		return -1, errnoOrNil(fd)
	}
	return int(fd), nil
}

func (b *dlBinding) EpollCtl(epfd int, op EpollOp, fd int, ptr uintptr) error {
	var ev C.struct_epoll_event
	ev.events = C.EPOLLIN | C.EPOLLERR
	*(*uintptr)(unsafe.Pointer(&ev.data)) = ptr
	cop := C.EPOLL_CTL_ADD
	if op == EpollDel {
		cop = C.EPOLL_CTL_DEL
	}
	return errnoOrNil(C.xliosock_epoll_ctl(C.int(epfd), C.int(cop), C.int(fd), &ev))
}

func (b *dlBinding) EpollWait(epfd int, events []Event, timeoutMs int) (int, error) {
	raw := make([]C.struct_epoll_event, len(events))
	n := C.xliosock_epoll_wait(C.int(epfd), &raw[0], C.int(len(raw)), C.int(timeoutMs))
	if n < 0 {
		return -1, errnoOrNil(n)
	}
	for i := 0; i < int(n); i++ {
		ptr := *(*uintptr)(unsafe.Pointer(&raw[i].data))
		events[i] = Event{
			Ptr:      ptr,
			Readable: raw[i].events&C.EPOLLIN != 0,
			Error:    raw[i].events&(C.EPOLLERR|C.EPOLLHUP) != 0,
		}
	}
	return int(n), nil
}

func (b *dlBinding) SetNonblock(fd int, nonblocking bool) error {
	flags := C.xliosock_fcntl_getfl(C.int(fd))
	if flags < 0 {
		return errnoOrNil(flags)
	}
	if nonblocking {
		flags |= C.O_NONBLOCK
	} else {
		flags &^= C.O_NONBLOCK
	}
	return errnoOrNil(C.xliosock_fcntl_setfl(C.int(fd), flags))
}

func (b *dlBinding) GetsockoptInt(fd, level, opt int) (int, error) {
	var val C.int
	l := C.socklen_t(unsafe.Sizeof(val))
	rc := C.xliosock_getsockopt(C.int(fd), C.int(level), C.int(opt), unsafe.Pointer(&val), &l)
	if rc < 0 {
		return 0, errnoOrNil(rc)
	}
	return int(val), nil
}

func (b *dlBinding) SetsockoptInt(fd, level, opt, value int) error {
	v := C.int(value)
	rc := C.xliosock_setsockopt(C.int(fd), C.int(level), C.int(opt), unsafe.Pointer(&v), C.socklen_t(unsafe.Sizeof(v)))
	return errnoOrNil(rc)
}

func (b *dlBinding) GetLocalAddr(fd int) (net.Addr, error) {
	var sa [128]byte
	l := C.socklen_t(len(sa))
	rc := C.xliosock_getsockname(C.int(fd), (*C.struct_sockaddr)(unsafe.Pointer(&sa[0])), &l)
	if rc < 0 {
		return nil, errnoOrNil(rc)
	}
	return addrFromSockaddr(sa[:l]), nil
}

func (b *dlBinding) GetPeerAddr(fd int) (net.Addr, error) {
	var sa [128]byte
	l := C.socklen_t(len(sa))
	rc := C.xliosock_getpeername(C.int(fd), (*C.struct_sockaddr)(unsafe.Pointer(&sa[0])), &l)
	if rc < 0 {
		return nil, errnoOrNil(rc)
	}
	return addrFromSockaddr(sa[:l]), nil
}

func (b *dlBinding) Resolve(host, service string, passive bool) ([]net.Addr, error) {
	chost := C.CString(host)
	defer C.free(unsafe.Pointer(chost))
	cservice := C.CString(service)
	defer C.free(unsafe.Pointer(cservice))

	var hints C.struct_addrinfo
	hints.ai_socktype = C.SOCK_STREAM
	hints.ai_flags = C.AI_NUMERICSERV | C.AI_NUMERICHOST
	if passive {
		hints.ai_flags |= C.AI_PASSIVE
	}

	var res *C.struct_addrinfo
	rc := C.g_ops.getaddrinfo(chost, cservice, &hints, &res)
	if rc != 0 {
		return nil, errors.New("stack: resolve failed")
	}
	defer C.g_ops.freeaddrinfo(res)

	var out []net.Addr
	for p := res; p != nil; p = p.ai_next {
		sa := C.GoBytes(unsafe.Pointer(p.ai_addr), C.int(p.ai_addrlen))
		out = append(out, addrFromSockaddr(sa))
	}
	return out, nil
}

// ExtAPI implementation. The extended API table is obtained once via a
// sentinel getsockopt query on a reserved fd, as the vendor library does
// not expose it through dlsym directly, then cached for the life of the
// binding.
func (b *dlBinding) ensureExtAPI() (*C.xliosock_ext_api_t, error) {
	if b.extAPI != nil {
		return b.extAPI, nil
	}
	raw := C.xliosock_get_api(C.int(sentinelExtAPIFd), C.int(C.SOL_SOCKET), C.int(soGetExtAPI))
	if raw == nil {
		return nil, ErrAPIUnavailable
	}
	b.extAPI = (*C.xliosock_ext_api_t)(raw)
	return b.extAPI, nil
}

const zcPacketsBufSize = 128 // matches the vendor's own xlio_packets_buf sizing

func (b *dlBinding) RecvZcopy(fd int, into []byte) (int, []PacketHandle, error) {
	api, err := b.ensureExtAPI()
	if err != nil {
		return 0, nil, err
	}
	if api.recvfrom_zcopy == nil {
		return 0, nil, ErrAPIUnavailable
	}

	var cbuf [zcPacketsBufSize]byte
	var flags C.int
	n := C.xliosock_ext_recvfrom_zcopy(api, C.int(fd), unsafe.Pointer(&cbuf[0]), C.size_t(len(cbuf)), &flags)
	if n < 0 {
		return -1, nil, errnoOrNil(C.int(n))
	}
	if n == 0 {
		return 0, nil, nil
	}
	if flags&C.int(msgZcopyFlag) == 0 {
		return 0, nil, errors.New("stack: recvfrom_zcopy did not take the zero-copy path")
	}

	pkts := (*C.xliosock_zc_packets_t)(unsafe.Pointer(&cbuf[0]))
	count := int(pkts.n_packet_num)
	handles := make([]PacketHandle, 0, count)
	cur := &pkts.pkts[0]
	for i := 0; i < count; i++ {
		nIov := int(cur.sz_iov)
		iovArr := (*[1 << 20]C.struct_iovec)(unsafe.Pointer(&cur.iov[0]))[:nIov:nIov]
		iovs := make([]wire.Iovec, nIov)
		for j, iov := range iovArr {
			iovs[j] = wire.Iovec{Base: uintptr(iov.iov_base), Len: uint64(iov.iov_len)}
		}
		handles = append(handles, PacketHandle{PacketID: uintptr(cur.packet_id), Iovs: iovs})
		cur = (*C.xliosock_zc_packet_t)(unsafe.Pointer(uintptr(unsafe.Pointer(cur)) + uintptr(C.xliosock_ext_packet_stride(C.size_t(nIov)))))
	}
	return int(n), handles, nil
}

func (b *dlBinding) ReleasePackets(fd int, packets []PacketHandle) error {
	api, err := b.ensureExtAPI()
	if err != nil {
		return err
	}
	if api.recvfrom_zcopy_free_packets == nil {
		return ErrAPIUnavailable
	}
	for _, p := range packets {
		var pkt C.xliosock_zc_packet_t
		pkt.packet_id = unsafe.Pointer(p.PacketID)
		pkt.sz_iov = 0
		if rc := C.xliosock_ext_free_packets(api, C.int(fd), &pkt, 1); rc < 0 {
			return errnoOrNil(rc)
		}
	}
	return nil
}

func (b *dlBinding) RegisterAllocator(alloc func(int) []byte, free func([]byte)) error {
	api, err := b.ensureExtAPI()
	if err != nil {
		return err
	}
	if api.ioctl == nil {
		return ErrAPIUnavailable
	}
	extAllocMu.Lock()
	extAllocFn = alloc
	extFreeFn = free
	extAllocMu.Unlock()
	return errnoOrNil(C.xliosock_ext_register_allocator(api))
}

func (b *dlBinding) ProtectionDomain(fd int) (uintptr, bool) {
	pd := C.xliosock_get_pd(C.int(fd), C.int(C.SOL_SOCKET), C.int(soProtectionDom))
	if pd == nil {
		return 0, false
	}
	return uintptr(pd), true
}

const unixMsgErrqueue = 0x2000 // MSG_ERRQUEUE
