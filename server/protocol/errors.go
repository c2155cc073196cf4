package protocol

import "github.com/cockroachdb/errors"

// ErrMalformedRequest marks every parse failure caused by invalid
// request syntax. Match with errors.Is; the concrete error text names
// the offending input and reads well as a plain-text reply body.
var ErrMalformedRequest = errors.New("malformed request")

func malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedRequest)
}
