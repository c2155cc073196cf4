package engine

import "github.com/cockroachdb/errors"

// Task runs a handler so it can suspend mid-execution and resume later
// with its stack intact. The handler lives on its own goroutine but
// control is handed over synchronously: exactly one side runs at any
// moment, the other is parked on a channel. To the event loop a task
// is just a value it steps with Resume.
type Task struct {
	resume    chan struct{}
	state     chan taskState
	done      bool
	err       error
	cancelled bool
}

type taskState struct {
	done bool
	err  error
}

// Run starts fn and drives it to its first suspension point or to
// completion before returning. A panic escaping fn is captured as its
// error.
func Run(fn func(*Task) error) *Task {
	t := &Task{
		resume: make(chan struct{}),
		state:  make(chan taskState),
	}

	go func() {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Newf("handler panic: %v", r)
				}
			}()
			err = fn(t)
		}()
		t.state <- taskState{done: true, err: err}
	}()

	t.wait()
	return t
}

func (t *Task) wait() {
	st := <-t.state
	t.done = st.done
	t.err = st.err
}

// Yield suspends the calling handler until the next Resume. Called
// only from inside fn, on the task goroutine.
func (t *Task) Yield() {
	t.state <- taskState{}
	<-t.resume
}

// Resume hands control back to the suspended handler and blocks until
// it suspends again or completes. Resuming a completed task is a
// programming error.
func (t *Task) Resume() {
	if t.done {
		panic("engine: resume of a completed task")
	}
	t.resume <- struct{}{}
	t.wait()
}

// Done reports whether the handler has returned.
func (t *Task) Done() bool { return t.done }

// Err returns the handler's error once done.
func (t *Task) Err() error { return t.err }

// Cancelled reports whether the task is being torn down. Checked by
// blocking reads after waking from Yield.
func (t *Task) Cancelled() bool { return t.cancelled }

// Cancel resumes a suspended task with the cancelled flag up until it
// completes, so the handler unwinds through its failing reads instead
// of leaking its goroutine.
func (t *Task) Cancel() {
	t.cancelled = true
	for !t.done {
		t.Resume()
	}
}
