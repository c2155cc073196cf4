package protocol

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRequest = "POST /submit HTTP/1.1\r\n" +
	"Host: localhost:8080\r\n" +
	"Content-Type: application/json\r\n" +
	"Content-Length: 5\r\n" +
	"\r\n" +
	"hello"

// feed runs the parser over raw delivered in one shot.
func feed(t *testing.T, raw string) (bool, int, *Request, error) {
	t.Helper()
	var (
		p   Parser
		buf Buffer
		req Request
	)
	buf.AppendString(raw)
	done, consumed, err := p.Parse(&buf, &req)
	return done, consumed, &req, err
}

func Test_parse_complete_request(t *testing.T) {
	done, consumed, req, err := feed(t, sampleRequest)
	require.NoError(t, err)
	require.True(t, done)

	assert.Equal(t, "POST", req.Method())
	assert.Equal(t, "/submit", req.Path())
	assert.Equal(t, "HTTP/1.1", req.Version())
	assert.Equal(t, 3, req.Headers().Len())

	host, ok := req.Header("Host")
	require.True(t, ok)
	assert.Equal(t, "localhost:8080", host)

	assert.Equal(t, 5, req.ContentLength())

	// header section length excludes the terminal blank line
	wantConsumed := len(sampleRequest) - len("\r\nhello")
	assert.Equal(t, wantConsumed, consumed)
}

// every split of the request into chunks must parse to the same result
// as the one-shot parse
func Test_parse_any_chunking(t *testing.T) {
	raw := []byte(sampleRequest)

	for size := 1; size <= len(raw); size++ {
		t.Run(fmt.Sprintf("chunk_size_%d", size), func(t *testing.T) {
			var (
				p   Parser
				buf Buffer
				req Request
			)

			done := false
			for _, chunk := range lo.Chunk(raw, size) {
				buf.Append(chunk)
				if done {
					// head section already parsed, the rest is body
					continue
				}

				var err error
				done, _, err = p.Parse(&buf, &req)
				require.NoError(t, err)
			}

			require.True(t, done)
			assert.Equal(t, "POST", req.Method())
			assert.Equal(t, "/submit", req.Path())
			assert.Equal(t, "HTTP/1.1", req.Version())
			assert.Equal(t, 3, req.Headers().Len())
			assert.Equal(t, []byte("hello"), buf.BytesAfter())
		})
	}
}

// an incomplete attempt must leave head == commit, so a retry sees the
// same bytes again
func Test_parse_rollback_on_starvation(t *testing.T) {
	prefixes := []string{
		"PO",
		"POST ",
		"POST /sub",
		"POST /submit HTTP/1",
		"POST /submit HTTP/1.1\r\nHos",
		"POST /submit HTTP/1.1\r\nHost: localhost\r\n",
		"POST /submit HTTP/1.1\r\nHost: localhost\r\n\r",
	}

	for _, prefix := range prefixes {
		t.Run(prefix, func(t *testing.T) {
			var (
				p   Parser
				buf Buffer
				req Request
			)
			buf.AppendString(prefix)

			done, _, err := p.Parse(&buf, &req)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, buf.Committed(), buf.Head())
		})
	}
}

// the consumed count must track committed header bytes even while the
// request is incomplete, so a size limit can trip mid-stream before
// the terminal blank line ever arrives
func Test_parse_consumed_grows_across_attempts(t *testing.T) {
	var (
		p   Parser
		buf Buffer
		req Request
	)

	buf.AppendString("GET / HTTP/1.1\r\n")
	done, consumed, err := p.Parse(&buf, &req)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 16, consumed)

	line := "X-Filler: " + strings.Repeat("a", 30) + "\r\n"
	buf.AppendString(line)
	done, consumed, err = p.Parse(&buf, &req)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 16+len(line), consumed)

	buf.AppendString("\r\n")
	done, consumed, err = p.Parse(&buf, &req)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, 16+len(line), consumed, "terminal blank line is not counted")
}

func Test_parse_malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"header without colon", "GET / HTTP/1.1\r\nNoColonHere\r\n\r\n"},
		{"no space after colon", "GET / HTTP/1.1\r\nHost:localhost\r\n\r\n"},
		{"colon at line end", "GET / HTTP/1.1\r\nHost:\r\n\r\n"},
		{"empty method", " / HTTP/1.1\r\n\r\n"},
		{"empty path", "GET  HTTP/1.1\r\n\r\n"},
		{"empty version", "GET / \r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, _, _, err := feed(t, tt.raw)
			assert.False(t, done)
			assert.ErrorIs(t, err, ErrMalformedRequest)
		})
	}
}

func Test_parse_header_semantics(t *testing.T) {
	t.Run("last write wins", func(t *testing.T) {
		done, _, req, err := feed(t, "GET / HTTP/1.1\r\nX-Tag: one\r\nX-Tag: two\r\n\r\n")
		require.NoError(t, err)
		require.True(t, done)

		v, ok := req.Header("X-Tag")
		require.True(t, ok)
		assert.Equal(t, "two", v)
		assert.Equal(t, 1, req.Headers().Len())
	})

	t.Run("names matched exactly as received", func(t *testing.T) {
		done, _, req, err := feed(t, "GET / HTTP/1.1\r\nx-tag: lower\r\nX-Tag: upper\r\n\r\n")
		require.NoError(t, err)
		require.True(t, done)

		assert.Equal(t, 2, req.Headers().Len())
		v, ok := req.Header("x-tag")
		require.True(t, ok)
		assert.Equal(t, "lower", v)
	})

	t.Run("only the first space after the colon is eaten", func(t *testing.T) {
		done, _, req, err := feed(t, "GET / HTTP/1.1\r\nX-Pad:   wide\r\n\r\n")
		require.NoError(t, err)
		require.True(t, done)

		v, _ := req.Header("X-Pad")
		assert.Equal(t, "  wide", v)
	})

	t.Run("bare LF line endings are tolerated", func(t *testing.T) {
		done, _, req, err := feed(t, "GET /lf HTTP/1.1\nHost: a\n\n")
		require.NoError(t, err)
		require.True(t, done)
		assert.Equal(t, "/lf", req.Path())
		v, _ := req.Header("Host")
		assert.Equal(t, "a", v)
	})
}

func Test_content_length_parsing(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"absent", "GET / HTTP/1.1\r\n\r\n", 0},
		{"valid", "GET / HTTP/1.1\r\nContent-Length: 42\r\n\r\n", 42},
		{"garbage", "GET / HTTP/1.1\r\nContent-Length: ten\r\n\r\n", 0},
		{"negative", "GET / HTTP/1.1\r\nContent-Length: -3\r\n\r\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, _, req, err := feed(t, tt.raw)
			require.NoError(t, err)
			require.True(t, done)
			assert.Equal(t, tt.want, req.ContentLength())
		})
	}
}

func Test_build_response_golden(t *testing.T) {
	var res Response
	res.SetContentType("text/plain")
	res.SetBodyString("hi")
	res.SetDate(time.Date(2024, time.March, 9, 12, 30, 45, 0, time.UTC))

	var out Buffer
	BuildResponse(&out, &res)

	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 2\r\n" +
		"Date: Sat, 09 Mar 2024 12:30:45 GMT\r\n" +
		"\r\n" +
		"hi"
	assert.Equal(t, want, string(out.BytesAfter()))
}

func Test_build_response_skips_empty_values(t *testing.T) {
	var res Response
	res.SetHeader("X-Empty", "")
	res.SetHeader("X-Kept", "v")

	var out Buffer
	BuildResponse(&out, &res)

	assert.Equal(t, "HTTP/1.1 200 OK\r\nX-Kept: v\r\n\r\n", string(out.BytesAfter()))
}

func Test_response_defaults_and_status(t *testing.T) {
	var res Response
	assert.Equal(t, "HTTP/1.1", res.Version())
	assert.Equal(t, 200, res.Status())
	assert.Equal(t, "OK", res.Reason())

	res.SetStatus(404)
	assert.Equal(t, 404, res.Status())
	assert.Equal(t, "Not Found", res.Reason())

	res.SetStatusReason(599, "Weird")
	assert.Equal(t, 599, res.Status())
	assert.Equal(t, "Weird", res.Reason())
}

func Test_response_body_tracks_content_length(t *testing.T) {
	var res Response
	res.SetBodyString("abc")
	v, _ := res.Header("Content-Length")
	assert.Equal(t, "3", v)

	res.AppendBodyString("de")
	v, _ = res.Header("Content-Length")
	assert.Equal(t, "5", v)
	assert.Equal(t, []byte("abcde"), res.Body())

	res.SetBody(nil)
	v, _ = res.Header("Content-Length")
	assert.Equal(t, "0", v)
}

func Test_response_date_roundtrip(t *testing.T) {
	stamp := time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC)

	var res Response
	res.SetDate(stamp)

	got, ok := res.Date()
	require.True(t, ok)
	assert.True(t, stamp.Equal(got))

	var empty Response
	_, ok = empty.Date()
	assert.False(t, ok)
}

func BenchmarkBuildResponse(b *testing.B) {
	var res Response
	res.SetContentType("application/json")
	res.SetBodyString(`{"status":"ok","message":"hello world"}`)
	res.SetDate(time.Now())

	var out Buffer
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		out.Reset()
		BuildResponse(&out, &res)
	}
}

func BenchmarkParse(b *testing.B) {
	var p Parser
	raw := []byte(sampleRequest)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		var (
			buf Buffer
			req Request
		)
		buf.Append(raw)
		if _, _, err := p.Parse(&buf, &req); err != nil {
			b.Fatal(err)
		}
	}
}
