// incremental request parsing over a cursor buffer
// only parser logic, no sockets
package protocol

import "strings"

// Parser tokenizes request bytes incrementally. It keeps no state of
// its own: progress lives in the buffer cursors and the partially
// filled Request, so one Parser instance serves every connection.
type Parser struct{}

// Parse resumes at the first field of req that is still empty and
// consumes as many complete tokens as the buffer holds. When the bytes
// run out mid-token the buffer is rolled back to the last commit and
// done is false; the call is safe to repeat verbatim after the next
// append. A syntax violation returns an error marked
// ErrMalformedRequest.
//
// consumed counts the bytes of the header section parsed so far. Once
// done it is exact: everything up to, not including, the terminal
// blank line. The caller checks it against its header size limit after
// every attempt, complete or not, so body bytes never count.
func (p *Parser) Parse(buf *Buffer, req *Request) (done bool, consumed int, err error) {
	if req.method == "" {
		tok, ok := p.readToken(buf, ' ')
		if !ok {
			return false, buf.Committed(), nil
		}
		if tok == "" {
			return false, 0, malformedf("empty method in request line")
		}
		req.method = tok
		buf.Commit()
	}

	if req.path == "" {
		tok, ok := p.readToken(buf, ' ')
		if !ok {
			return false, buf.Committed(), nil
		}
		if tok == "" {
			return false, 0, malformedf("empty path in request line")
		}
		req.path = tok
		buf.Commit()
	}

	if req.version == "" {
		line, ok := p.readLine(buf)
		if !ok {
			return false, buf.Committed(), nil
		}
		if line == "" {
			return false, 0, malformedf("empty version in request line")
		}
		req.version = line
		buf.Commit()
	}

	for {
		// commit position marks the header section end so far
		mark := buf.Head()

		line, ok := p.readLine(buf)
		if !ok {
			return false, buf.Committed(), nil
		}
		if line == "" {
			// bare CRLF, header section is over
			buf.Commit()
			return true, mark, nil
		}

		key, val, herr := p.splitHeader(line)
		if herr != nil {
			return false, 0, herr
		}
		req.headers.Set(key, val)
		buf.Commit()
	}
}

// readToken consumes bytes up to a single delimiter. Reports false and
// rolls back when the delimiter has not arrived yet.
func (p *Parser) readToken(buf *Buffer, delim byte) (string, bool) {
	start := buf.Head()
	for {
		c, ok := buf.Next()
		if !ok {
			buf.Rollback()
			return "", false
		}
		if c == delim {
			return string(buf.BytesBefore()[start : buf.Head()-1]), true
		}
	}
}

// readLine consumes one line terminated by LF, stripping an optional
// trailing CR. Reports false and rolls back on a line still missing
// its terminator.
func (p *Parser) readLine(buf *Buffer) (string, bool) {
	start := buf.Head()
	for {
		c, ok := buf.Next()
		if !ok {
			buf.Rollback()
			return "", false
		}
		if c != '\n' {
			continue
		}
		end := buf.Head() - 1
		if end > start && buf.BytesBefore()[end-1] == '\r' {
			end--
		}
		return string(buf.BytesBefore()[start:end]), true
	}
}

// splitHeader splits "Key: Value". The colon must be followed by a
// single space; anything after that space, spaces included, is the
// value byte for byte.
func (p *Parser) splitHeader(line string) (string, string, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", malformedf("header line without colon (':'): %q", line)
	}
	rest := line[colon+1:]
	if rest == "" {
		return "", "", malformedf("expected space (' ') after colon (':'), got end of line")
	}
	if rest[0] != ' ' {
		return "", "", malformedf("expected space (' ') after colon (':'), got %q", rest[0])
	}
	return line[:colon], rest[1:], nil
}
