package decoder

import (
	"errors"
	"fmt"
)

// ErrMalformedHex is matched by every DecodeError via errors.Is.
var ErrMalformedHex = errors.New("malformed hex")

// DecodeError reports a payload field that could not be parsed.
type DecodeError struct {
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: malformed hex %q: %v", e.Field, truncate(e.Value, 24), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedHex) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedHex
}

func malformed(field, value string, err error) *DecodeError {
	return &DecodeError{Field: field, Value: value, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
