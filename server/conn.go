package server

import (
	"github.com/kfcemployee/monoserve/server/engine"
	"github.com/kfcemployee/monoserve/server/protocol"
)

// phase is a connection's position in its request/response cycle.
type phase uint8

const (
	phaseReceiving phase = iota
	phaseExecuting
	phaseSending
)

func (p phase) String() string {
	switch p {
	case phaseReceiving:
		return "receiving"
	case phaseExecuting:
		return "executing"
	case phaseSending:
		return "sending"
	default:
		return "unknown"
	}
}

// conn aggregates everything one client connection owns: its socket,
// its inbound and outbound buffers, the request and response of the
// current turn, and the handler task when one is in flight.
type conn struct {
	desc *engine.Descriptor

	in  protocol.Buffer
	out protocol.Buffer
	req protocol.Request
	res protocol.Response

	phase phase
	task  *engine.Task
	body  *engine.BodyReader

	// closeAfterSend forces teardown once the response is flushed,
	// set on protocol failures where the stream cannot resync
	closeAfterSend bool
}

func newConn(desc *engine.Descriptor) *conn {
	return &conn{desc: desc, phase: phaseReceiving}
}

// reset readies the connection for the next request on the same
// socket. carry holds bytes of the next request that already arrived,
// they re-seed the inbound buffer.
func (c *conn) reset(carry []byte) {
	c.in.Reset()
	c.out.Reset()
	c.req.Reset()
	c.res.Reset()
	c.task = nil
	c.body = nil
	c.closeAfterSend = false
	c.phase = phaseReceiving
	if len(carry) > 0 {
		c.in.Append(carry)
	}
}

// carryover returns received bytes beyond the current request that
// must survive the keep-alive reset.
func (c *conn) carryover() []byte {
	if c.body != nil {
		return c.body.Surplus()
	}
	// no handler ran, leftovers still sit in the inbound buffer
	if c.in.Remaining() > 0 {
		return append([]byte(nil), c.in.BytesAfter()...)
	}
	return nil
}
