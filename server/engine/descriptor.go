package engine

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock reports a non-blocking operation that found the
	// socket not ready. Not a failure, wait for the next readiness
	// event.
	ErrWouldBlock = errors.New("operation would block")

	// ErrClosed reports use of a descriptor after close or detach.
	ErrClosed = errors.New("descriptor is closed")
)

// Descriptor owns one socket handle exclusively: it closes the handle
// exactly once, no matter how many times Close is called or how the
// descriptor is abandoned. Ownership moves via Detach. The lock only
// exists to make close and detach race-free against concurrent use;
// the engine itself stays on one thread.
type Descriptor struct {
	mu sync.Mutex
	fd int
}

// NewDescriptor takes ownership of a raw handle.
func NewDescriptor(fd int) *Descriptor {
	return &Descriptor{fd: fd}
}

// Raw exposes the handle for readiness registration, -1 once closed.
func (d *Descriptor) Raw() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fd
}

func (d *Descriptor) Valid() bool {
	return d.Raw() >= 0
}

// Read fills p from the socket. End of stream surfaces as io.EOF, a
// not-ready socket as ErrWouldBlock.
func (d *Descriptor) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(d.fd, p)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "read socket")
		case n == 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// Write pushes p to the socket, possibly partially. A full send buffer
// surfaces as ErrWouldBlock with zero written.
func (d *Descriptor) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(d.fd, p)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "write socket")
		default:
			return n, nil
		}
	}
}

// Accept takes one pending connection off a listening descriptor and
// returns it as a fresh non-blocking Descriptor. No pending connection
// surfaces as ErrWouldBlock.
func (d *Descriptor) Accept() (*Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil, ErrClosed
	}
	for {
		nfd, _, err := unix.Accept(d.fd)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil, ErrWouldBlock
		case err != nil:
			return nil, errors.Wrap(err, "accept connection")
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return nil, errors.Wrap(err, "update socket flags")
		}
		return NewDescriptor(nfd), nil
	}
}

// Shutdown closes both stream directions without releasing the handle,
// so readiness instances still watching it observe the hang-up.
func (d *Descriptor) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return ErrClosed
	}
	return errors.Wrap(unix.Shutdown(d.fd, unix.SHUT_RDWR), "shutdown socket")
}

// Close releases the handle. Safe to call any number of times, only
// the first does anything.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return errors.Wrap(err, "close socket")
}

// Detach moves the handle out: the caller owns it from here and the
// descriptor becomes invalid without closing anything.
func (d *Descriptor) Detach() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	fd := d.fd
	d.fd = -1
	return fd
}

// LocalAddr reports the bound address, "ip:port" for inet sockets and
// the path for unix-domain ones.
func (d *Descriptor) LocalAddr() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return "", ErrClosed
	}
	sa, err := unix.Getsockname(d.fd)
	if err != nil {
		return "", errors.Wrap(err, "read socket name")
	}
	return formatSockaddr(sa)
}
