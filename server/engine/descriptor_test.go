package engine

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// descPair returns two connected non-blocking stream descriptors.
func descPair(t *testing.T) (*Descriptor, *Descriptor) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))

	a, b := NewDescriptor(fds[0]), NewDescriptor(fds[1])
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func Test_descriptor_read_write(t *testing.T) {
	a, b := descPair(t)

	n, err := a.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 16)
	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), buf[:n])
}

func Test_descriptor_read_would_block(t *testing.T) {
	a, _ := descPair(t)

	buf := make([]byte, 16)
	_, err := a.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func Test_descriptor_read_eof(t *testing.T) {
	a, b := descPair(t)
	require.NoError(t, b.Close())

	buf := make([]byte, 16)
	_, err := a.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func Test_descriptor_close_idempotent(t *testing.T) {
	a, _ := descPair(t)

	require.NoError(t, a.Close())
	assert.False(t, a.Valid())
	assert.Equal(t, -1, a.Raw())

	// second close must be a no-op, not a double close
	assert.NoError(t, a.Close())

	_, err := a.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_descriptor_detach_moves_ownership(t *testing.T) {
	a, _ := descPair(t)

	fd := a.Detach()
	require.GreaterOrEqual(t, fd, 0)
	assert.False(t, a.Valid())
	assert.NoError(t, a.Close(), "close after detach must not touch the moved handle")

	// the caller owns the handle now
	owner := NewDescriptor(fd)
	assert.NoError(t, owner.Close())
}

func Test_descriptor_concurrent_close(t *testing.T) {
	a, _ := descPair(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Close()
		}()
	}
	wg.Wait()
	assert.False(t, a.Valid())
}

func Test_descriptor_shutdown_keeps_handle(t *testing.T) {
	a, b := descPair(t)

	require.NoError(t, a.Shutdown())
	assert.True(t, a.Valid(), "shutdown signals peers but keeps the handle")

	// the peer sees end of stream
	_, err := b.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
