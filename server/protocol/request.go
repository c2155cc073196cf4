package protocol

import "strconv"

// Request is the parsed inbound message. The parser fills it field by
// field as bytes arrive, so between parse attempts it may hold only a
// prefix of the final request.
type Request struct {
	method  string
	path    string
	version string
	headers Headers
}

func (r *Request) Method() string { return r.method }

func (r *Request) Path() string { return r.path }

func (r *Request) Version() string { return r.version }

func (r *Request) Header(key string) (string, bool) {
	return r.headers.Get(key)
}

func (r *Request) Headers() *Headers { return &r.headers }

// ContentLength reports the declared body length. A missing, invalid
// or negative Content-Length header means no body.
func (r *Request) ContentLength() int {
	val, ok := r.headers.Get("Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Reset clears the request for the next turn on the same connection.
func (r *Request) Reset() {
	r.method = ""
	r.path = ""
	r.version = ""
	r.headers.reset()
}
