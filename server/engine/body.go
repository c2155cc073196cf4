package engine

import (
	"io"

	"github.com/cockroachdb/errors"
)

// ErrReadCancelled reports a body read aborted by connection teardown.
var ErrReadCancelled = errors.New("body read cancelled")

// BodyReader serves a request body of a declared length to a handler,
// pulling bytes off the socket only as needed. A read that cannot be
// satisfied yet suspends the handler's task instead of blocking the
// event loop; the loop resumes it on the next readable event.
type BodyReader struct {
	desc      *Descriptor
	task      *Task
	remaining int
	acc       []byte
	scratch   []byte
	fatal     error
}

// NewBodyReader builds a reader for one request. declared is the body
// length the request promises, chunk the socket read size, seed any
// body bytes that already arrived with the header section.
func NewBodyReader(desc *Descriptor, task *Task, declared, chunk int, seed []byte) *BodyReader {
	return &BodyReader{
		desc:      desc,
		task:      task,
		remaining: declared,
		acc:       append(make([]byte, 0, max(len(seed), chunk)), seed...),
		scratch:   make([]byte, chunk),
	}
}

// Remaining reports how many declared bytes have not been returned.
func (r *BodyReader) Remaining() int { return r.remaining }

// Read returns the next min(n, remaining) body bytes, suspending the
// caller's task while the socket has not delivered enough. Once the
// declared length is spent it returns empty without touching the
// socket. The returned slice is valid until the next Read.
func (r *BodyReader) Read(n int) ([]byte, error) {
	if r.fatal != nil {
		return nil, r.fatal
	}

	want := min(n, r.remaining)
	if want <= 0 {
		return nil, nil
	}

	for len(r.acc) < want {
		if r.task.Cancelled() {
			r.fatal = ErrReadCancelled
			return nil, r.fatal
		}

		got, err := r.desc.Read(r.scratch)
		switch {
		case errors.Is(err, ErrWouldBlock):
			r.task.Yield()
			continue
		case errors.Is(err, io.EOF):
			// peer quit before delivering the declared length
			r.fatal = io.ErrUnexpectedEOF
			return nil, r.fatal
		case err != nil:
			r.fatal = errors.Wrap(err, "read request body")
			return nil, r.fatal
		}
		r.acc = append(r.acc, r.scratch[:got]...)
	}

	out := r.acc[:want]
	r.acc = r.acc[want:]
	r.remaining -= want
	return out, nil
}

// Discard drains and drops the undelivered remainder of the body so
// the stream is aligned on the next request boundary.
func (r *BodyReader) Discard() error {
	for r.remaining > 0 {
		if _, err := r.Read(len(r.scratch)); err != nil {
			return err
		}
	}
	return nil
}

// Surplus returns bytes the reader pulled off the socket past the
// declared body end, the head of a pipelined next request. Meaningful
// once remaining is zero.
func (r *BodyReader) Surplus() []byte { return r.acc }
