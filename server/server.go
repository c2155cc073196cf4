// single-thread HTTP/1.1 engine over epoll
// one event loop drives accept, parsing, handlers and flushing
package server

import (
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/kfcemployee/monoserve/server/engine"
	"github.com/kfcemployee/monoserve/server/protocol"
	"github.com/kfcemployee/monoserve/server/router"
)

// errHeaderTooLarge doubles as the 400 reply body
var errHeaderTooLarge = errors.New("header size exceeds defined maximum size")

// Server multiplexes every connection of one listener over one thread.
// Scale horizontally by running more instances on the same address,
// the reusable-port listener spreads accepts between them.
type Server struct {
	cfg     Config
	log     *zap.Logger
	routes  *router.Table
	parser  protocol.Parser
	scratch *engine.BufferPool

	listener *engine.Descriptor
	conns    map[int]*conn
}

// NewTCP binds an IPv4 listener and wires it to the route table. The
// socket is bound and listening when the call returns; Serve starts
// accepting. A nil logger disables logging.
func NewTCP(host string, port int, routes *router.Table, cfg Config, log *zap.Logger) (*Server, error) {
	cfg = cfg.normalized()
	listener, err := engine.ListenTCP(host, port, cfg.ListenBacklog, cfg.SocketBufferSize)
	if err != nil {
		return nil, err
	}
	return newServer(listener, routes, cfg, log), nil
}

// NewUnix binds a unix-domain listener at path.
func NewUnix(path string, routes *router.Table, cfg Config, log *zap.Logger) (*Server, error) {
	cfg = cfg.normalized()
	listener, err := engine.ListenUnix(path, cfg.ListenBacklog)
	if err != nil {
		return nil, err
	}
	return newServer(listener, routes, cfg, log), nil
}

func newServer(listener *engine.Descriptor, routes *router.Table, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if routes == nil {
		routes = router.New()
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		routes:   routes,
		scratch:  engine.NewBufferPool(cfg.SocketBufferSize),
		listener: listener,
		conns:    make(map[int]*conn),
	}
}

// Addr reports the bound listen address, useful with port 0.
func (s *Server) Addr() (string, error) {
	return s.listener.LocalAddr()
}

// Kill shuts the listener down, which rejects new connections, tears
// existing ones down and unblocks a running Serve cleanly. Safe to
// call concurrently with Serve.
func (s *Server) Kill() error {
	s.log.Info("killing server")
	return s.listener.Shutdown()
}

// Serve runs the event loop. It blocks until Kill, then returns nil,
// or until a listener or poll failure, then returns the cause. Every
// live connection is torn down on the way out.
func (s *Server) Serve() error {
	poller, err := engine.NewPoller(s.cfg.MaxEventsPerLoop)
	if err != nil {
		return err
	}
	defer s.cleanup(poller)

	listenFD := s.listener.Raw()
	if err := poller.Add(listenFD, engine.ReadInterest); err != nil {
		return err
	}

	addr, _ := s.listener.LocalAddr()
	s.log.Info("serving", zap.String("addr", addr))

	events := make([]engine.Event, s.cfg.MaxEventsPerLoop)
	for {
		n, err := poller.Wait(events)
		if err != nil {
			return err
		}

		for _, ev := range events[:n] {
			if ev.FD == listenFD {
				if done, err := s.onListener(poller, ev); done {
					return err
				}
				continue
			}
			s.onConn(poller, ev)
		}
	}
}

// onListener handles one readiness report on the listening socket.
// done means the loop must exit: clean on hang-up, with the socket
// error otherwise.
func (s *Server) onListener(poller *engine.Poller, ev engine.Event) (bool, error) {
	if ev.Failed {
		return true, errors.Wrap(s.listenerError(), "error on core socket")
	}
	if ev.HangUp {
		s.log.Info("listener closed, shutting down")
		return true, nil
	}
	s.acceptAll(poller)
	return false, nil
}

func (s *Server) listenerError() error {
	fd := s.listener.Raw()
	if fd < 0 {
		return errors.New("listener closed")
	}
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	return unix.Errno(code)
}

// acceptAll drains the accept queue, the listener is level-triggered
// but one event can announce several pending connections.
func (s *Server) acceptAll(poller *engine.Poller) {
	for {
		desc, err := s.listener.Accept()
		if errors.Is(err, engine.ErrWouldBlock) {
			return
		}
		if err != nil {
			s.log.Debug("accept failed", zap.Error(err))
			return
		}

		fd := desc.Raw()
		if err := poller.Add(fd, engine.ReadInterest); err != nil {
			s.log.Debug("register connection failed", zap.Error(err))
			desc.Close()
			continue
		}
		s.conns[fd] = newConn(desc)
		s.log.Debug("connection accepted", zap.Int("fd", fd))
	}
}

// onConn dispatches one readiness report to the owning connection's
// current phase.
func (s *Server) onConn(poller *engine.Poller, ev engine.Event) {
	c, ok := s.conns[ev.FD]
	if !ok {
		// unmanaged handle, drop it from the interest set
		poller.Remove(ev.FD)
		return
	}

	if ev.Failed || ev.HangUp {
		if c.phase == phaseExecuting && c.task != nil && !c.task.Done() {
			// let the suspended handler observe the failure through
			// its next read instead of vanishing mid-invocation
			s.resumeExecution(poller, c)
			return
		}
		s.teardown(poller, c)
		return
	}

	switch c.phase {
	case phaseReceiving:
		if ev.Readable {
			s.stepReceiving(poller, c)
		}
	case phaseExecuting:
		if ev.Readable {
			s.resumeExecution(poller, c)
		}
	case phaseSending:
		if ev.Writable {
			s.stepSending(poller, c)
		}
	}
}

// stepReceiving reads everything currently available, then lets the
// parser try to finish the request.
func (s *Server) stepReceiving(poller *engine.Poller, c *conn) {
	buf := s.scratch.Get()
	defer s.scratch.Put(buf)

	for {
		n, err := c.desc.Read(buf)
		if errors.Is(err, engine.ErrWouldBlock) {
			break
		}
		if errors.Is(err, io.EOF) {
			s.log.Debug("peer closed", zap.Int("fd", c.desc.Raw()))
			s.teardown(poller, c)
			return
		}
		if err != nil {
			s.log.Debug("read failed", zap.Int("fd", c.desc.Raw()), zap.Error(err))
			s.teardown(poller, c)
			return
		}
		c.in.Append(buf[:n])
	}

	if c.in.Len() == c.in.Committed() {
		// nothing new to parse
		return
	}

	done, consumed, err := s.parser.Parse(&c.in, &c.req)
	if err != nil {
		s.rejectRequest(poller, c, err)
		return
	}
	if consumed > s.cfg.MaxHeaderSize {
		s.rejectRequest(poller, c, errHeaderTooLarge)
		return
	}
	if !done {
		return
	}

	c.phase = phaseExecuting
	s.startExecution(poller, c)
}

// rejectRequest answers a protocol failure with a 400 carrying the
// failure text, then closes once it is flushed: after a syntax error
// the byte stream cannot be trusted to resync.
func (s *Server) rejectRequest(poller *engine.Poller, c *conn, cause error) {
	s.log.Debug("rejecting request", zap.Int("fd", c.desc.Raw()), zap.Error(cause))
	c.res.Reset()
	c.res.SetStatus(400)
	c.res.SetContentType("text/plain")
	c.res.SetBodyString(cause.Error())
	c.closeAfterSend = true
	s.enterSending(poller, c)
}

// startExecution resolves the route and runs the handler inside a
// task. Route misses are answered without one.
func (s *Server) startExecution(poller *engine.Poller, c *conn) {
	h, err := s.routes.Lookup(c.req.Method(), c.req.Path())
	switch {
	case errors.Is(err, router.ErrPathNotFound):
		s.log.Debug("path not found", zap.String("path", c.req.Path()))
		c.res.SetStatus(404)
		c.res.SetContentType("text/plain")
		c.res.SetBodyString("The requested resource " + c.req.Path() + " was not found on this server")
		s.enterSending(poller, c)
		return
	case errors.Is(err, router.ErrMethodNotAllowed):
		s.log.Debug("method not allowed",
			zap.String("method", c.req.Method()), zap.String("path", c.req.Path()))
		c.res.SetStatus(405)
		c.res.SetContentType("text/plain")
		c.res.SetHeader("Allow", strings.Join(s.routes.Allowed(c.req.Path()), ", "))
		c.res.SetBodyString("The method " + c.req.Method() + " is not allowed for the requested resource")
		s.enterSending(poller, c)
		return
	}

	seed := c.in.BytesAfter()
	c.task = engine.Run(func(t *engine.Task) error {
		c.body = engine.NewBodyReader(c.desc, t, c.req.ContentLength(), s.cfg.SocketBufferSize, seed)
		if err := h(&c.req, &c.res, c.body); err != nil {
			return err
		}
		// realign the stream for the next request on this socket
		return c.body.Discard()
	})

	s.afterExecutionStep(poller, c)
}

// resumeExecution steps a suspended handler that was waiting for body
// bytes.
func (s *Server) resumeExecution(poller *engine.Poller, c *conn) {
	c.task.Resume()
	s.afterExecutionStep(poller, c)
}

func (s *Server) afterExecutionStep(poller *engine.Poller, c *conn) {
	if !c.task.Done() {
		// suspended again, wait for more body bytes
		return
	}
	if err := c.task.Err(); err != nil {
		s.log.Error("handler failed",
			zap.String("method", c.req.Method()), zap.String("path", c.req.Path()), zap.Error(err))
		s.teardown(poller, c)
		return
	}
	s.enterSending(poller, c)
}

// enterSending stamps the date, serializes the response once and
// switches the connection to writable interest. Flushing happens on
// writable events.
func (s *Server) enterSending(poller *engine.Poller, c *conn) {
	c.res.SetDate(time.Now())
	protocol.BuildResponse(&c.out, &c.res)
	c.phase = phaseSending
	if err := poller.Modify(c.desc.Raw(), engine.WriteInterest); err != nil {
		s.log.Debug("rearm for write failed", zap.Error(err))
		s.teardown(poller, c)
	}
}

// stepSending flushes as much of the serialized response as the socket
// accepts, then closes or recycles the connection.
func (s *Server) stepSending(poller *engine.Poller, c *conn) {
	for c.out.Remaining() > 0 {
		n, err := c.desc.Write(c.out.BytesAfter())
		if errors.Is(err, engine.ErrWouldBlock) {
			return
		}
		if err != nil {
			s.log.Debug("write failed", zap.Int("fd", c.desc.Raw()), zap.Error(err))
			s.teardown(poller, c)
			return
		}
		c.out.Advance(n)
	}

	if c.closeAfterSend {
		s.teardown(poller, c)
		return
	}
	if v, ok := c.req.Header("Connection"); ok && v == "close" {
		s.log.Debug("connection close requested", zap.Int("fd", c.desc.Raw()))
		s.teardown(poller, c)
		return
	}

	s.recycle(poller, c)
}

// recycle rolls a drained connection back to ReceivingRequest for its
// next turn, keeping the socket and any pipelined bytes that already
// arrived.
func (s *Server) recycle(poller *engine.Poller, c *conn) {
	carry := c.carryover()
	c.reset(carry)
	if err := poller.Modify(c.desc.Raw(), engine.ReadInterest); err != nil {
		s.log.Debug("rearm for read failed", zap.Error(err))
		s.teardown(poller, c)
		return
	}
	s.log.Debug("connection recycled", zap.Int("fd", c.desc.Raw()), zap.Int("carry", len(carry)))

	if c.in.Len() > 0 {
		// a pipelined request may already be complete, do not wait
		// for a readiness event that will never fire
		s.stepReceiving(poller, c)
	}
}

// teardown closes a connection and forgets it. No response is
// attempted, protocol failures that deserve one go through
// rejectRequest instead.
func (s *Server) teardown(poller *engine.Poller, c *conn) {
	fd := c.desc.Raw()
	if c.task != nil && !c.task.Done() {
		c.task.Cancel()
	}
	poller.Remove(fd)
	c.desc.Close()
	delete(s.conns, fd)
	s.log.Debug("connection closed", zap.Int("fd", fd), zap.String("phase", c.phase.String()))
}

// cleanup releases every resource Serve owns on the way out.
func (s *Server) cleanup(poller *engine.Poller) {
	for _, c := range s.conns {
		if c.task != nil && !c.task.Done() {
			c.task.Cancel()
		}
		c.desc.Close()
	}
	s.conns = make(map[int]*conn)
	poller.Close()
	s.listener.Close()
	s.log.Info("server stopped")
}
