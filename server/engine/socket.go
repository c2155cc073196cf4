package engine

import (
	"net/netip"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// ListenTCP binds a non-blocking IPv4 listener. Address and port are
// reusable so several independent engine instances can share one
// address and let the kernel spread accepted connections between them.
// Send and receive buffers are pinned to sockBuf bytes.
func ListenTCP(host string, port, backlog, sockBuf int) (*Descriptor, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, errors.Wrap(err, "addr parsing")
	}
	if !addr.Is4() {
		return nil, errors.Newf("addr parsing: %q is not an ipv4 address", host)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "create socket")
	}

	for _, opt := range []struct{ name, val int }{
		{unix.SO_REUSEADDR, 1},
		{unix.SO_REUSEPORT, 1},
		{unix.SO_RCVBUF, sockBuf},
		{unix.SO_SNDBUF, sockBuf},
	} {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, opt.name, opt.val); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "set socket options")
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr.As4()}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind socket")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "start listener")
	}

	return NewDescriptor(fd), nil
}

// ListenUnix binds a non-blocking unix-domain listener. The socket
// directory is created when missing and a stale socket file from a
// previous run is unlinked best-effort before bind.
func ListenUnix(path string, backlog int) (*Descriptor, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create socket directory")
		}
	}
	_ = unix.Unlink(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "create socket")
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind socket")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "start listener")
	}

	return NewDescriptor(fd), nil
}

func formatSockaddr(sa unix.Sockaddr) (string, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := netip.AddrFrom4(a.Addr)
		return ip.String() + ":" + strconv.Itoa(a.Port), nil
	case *unix.SockaddrUnix:
		return a.Name, nil
	default:
		return "", errors.Newf("unsupported socket address family %T", sa)
	}
}
