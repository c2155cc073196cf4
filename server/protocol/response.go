package protocol

import (
	"strconv"
	"time"
)

// imf-fixdate, always GMT
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is the outbound message a handler populates. The zero value
// is a valid 200 OK with no headers and no body.
type Response struct {
	code    int
	reason  string
	headers Headers
	body    []byte
}

// Version is fixed, the engine speaks HTTP/1.1 only.
func (r *Response) Version() string { return "HTTP/1.1" }

func (r *Response) Status() int {
	if r.code == 0 {
		return 200
	}
	return r.code
}

func (r *Response) Reason() string {
	if r.code == 0 && r.reason == "" {
		return "OK"
	}
	return r.reason
}

// SetStatus sets the status code and its canonical reason phrase.
func (r *Response) SetStatus(code int) {
	r.code = code
	r.reason = StatusText(code)
}

// SetStatusReason sets the status code with a caller-chosen reason.
func (r *Response) SetStatusReason(code int, reason string) {
	r.code = code
	r.reason = reason
}

func (r *Response) Header(key string) (string, bool) {
	return r.headers.Get(key)
}

func (r *Response) SetHeader(key, val string) {
	r.headers.Set(key, val)
}

func (r *Response) Headers() *Headers { return &r.headers }

func (r *Response) SetContentType(v string) {
	r.headers.Set("Content-Type", v)
}

// SetDate stamps the Date header in imf-fixdate form.
func (r *Response) SetDate(t time.Time) {
	r.headers.Set("Date", t.UTC().Format(dateLayout))
}

// Date reads the Date header back as a time value.
func (r *Response) Date() (time.Time, bool) {
	val, ok := r.headers.Get("Date")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (r *Response) Body() []byte { return r.body }

// SetBody replaces the body and recomputes Content-Length.
func (r *Response) SetBody(p []byte) {
	r.body = append(r.body[:0], p...)
	r.headers.Set("Content-Length", strconv.Itoa(len(r.body)))
}

func (r *Response) SetBodyString(s string) {
	r.body = append(r.body[:0], s...)
	r.headers.Set("Content-Length", strconv.Itoa(len(r.body)))
}

// AppendBody extends the body and recomputes Content-Length.
func (r *Response) AppendBody(p []byte) {
	r.body = append(r.body, p...)
	r.headers.Set("Content-Length", strconv.Itoa(len(r.body)))
}

func (r *Response) AppendBodyString(s string) {
	r.body = append(r.body, s...)
	r.headers.Set("Content-Length", strconv.Itoa(len(r.body)))
}

// Reset clears the response back to the zero 200 OK state.
func (r *Response) Reset() {
	r.code = 0
	r.reason = ""
	r.headers.reset()
	r.body = r.body[:0]
}
