//go:build linux

// low level epoll plumbing
// the engine works only with descriptors and readiness, no HTTP logic
package engine

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Interest selects which readiness directions a descriptor is watched
// for. The event loop narrows it per connection phase.
type Interest uint8

const (
	ReadInterest Interest = 1 << iota
	WriteInterest
)

func (i Interest) epollMask() uint32 {
	var mask uint32
	if i&ReadInterest != 0 {
		mask |= unix.EPOLLIN
	}
	if i&WriteInterest != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Event is one readiness report for one descriptor.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Failed   bool
	HangUp   bool
}

// Poller wraps one epoll instance. Level-triggered, single-threaded.
type Poller struct {
	epfd    int
	scratch []unix.EpollEvent
}

// NewPoller creates an epoll instance reporting at most maxEvents
// descriptors per Wait.
func NewPoller(maxEvents int) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "create epoll instance")
	}
	return &Poller{
		epfd:    epfd,
		scratch: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add registers a descriptor with an initial interest set.
func (p *Poller) Add(fd int, interest Interest) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: interest.epollMask(),
		Fd:     int32(fd),
	})
	return errors.Wrap(err, "add socket to epoll instance")
}

// Modify swaps a registered descriptor's interest set.
func (p *Poller) Modify(fd int, interest Interest) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: interest.epollMask(),
		Fd:     int32(fd),
	})
	return errors.Wrap(err, "modify socket in epoll instance")
}

// Remove drops a descriptor from the interest set.
func (p *Poller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return errors.Wrap(err, "remove socket from epoll instance")
}

// Wait blocks until at least one registered descriptor is ready and
// fills out with the reports. Interrupted waits are retried, the Go
// runtime signals freely.
func (p *Poller) Wait(out []Event) (int, error) {
	limit := min(len(out), len(p.scratch))
	if limit == 0 {
		return 0, nil
	}

	var n int
	for {
		var err error
		n, err = unix.EpollWait(p.epfd, p.scratch[:limit], -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "wait for incoming events")
		}
		break
	}

	for i := 0; i < n; i++ {
		ev := p.scratch[i]
		out[i] = Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Failed:   ev.Events&unix.EPOLLERR != 0,
			HangUp:   ev.Events&unix.EPOLLHUP != 0,
		}
	}
	return n, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	if p.epfd < 0 {
		return nil
	}
	err := unix.Close(p.epfd)
	p.epfd = -1
	return errors.Wrap(err, "close epoll instance")
}
