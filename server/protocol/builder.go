package protocol

// wire pieces for the serializer
var (
	proto = []byte("HTTP/1.1 ")
	crlf  = []byte("\r\n")
	colon = []byte(": ")
)

// appendUint writes the decimal form of n into dst without allocating.
func appendUint(dst *Buffer, n uint) {
	if n == 0 {
		dst.AppendString("0")
		return
	}

	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n%10) + '0'
		n /= 10
	}
	dst.Append(tmp[i:])
}

// BuildResponse serializes res into dst in one pass: status line,
// headers in insertion order, blank line, body. A header with an empty
// value is a "no header" sentinel and is left out entirely.
func BuildResponse(dst *Buffer, res *Response) {
	dst.Append(proto)
	appendUint(dst, uint(res.Status()))
	dst.AppendString(" ")
	dst.AppendString(res.Reason())
	dst.Append(crlf)

	for _, h := range res.headers.All() {
		if h.Val == "" {
			continue
		}
		dst.AppendString(h.Key)
		dst.Append(colon)
		dst.AppendString(h.Val)
		dst.Append(crlf)
	}

	dst.Append(crlf)
	if len(res.body) > 0 {
		dst.Append(res.body)
	}
}
