package decoder

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOverflow is returned when a pending item cannot fit in the buffer
	// even after compaction. The stream cannot make progress at this capacity.
	ErrOverflow = errors.New("decoder: buffer overflow")

	// ErrConnectionClosed is returned when the source reaches end of stream
	// while the strategy still needs bytes.
	ErrConnectionClosed = errors.New("decoder: connection closed")

	// ErrContractViolation is the panic value raised when a strategy asks for
	// more bytes after reporting the same window as complete.
	ErrContractViolation = errors.New("decoder: strategy needs more bytes after reporting readiness")
)

// NeedMoreError is the need-more outcome of a Strategy.
type NeedMoreError struct {
	// Hint is the estimated number of additional bytes required, or 0 when unknown.
	Hint int
}

func (e *NeedMoreError) Error() string {
	if e.Hint > 0 {
		return fmt.Sprintf("decoder: incomplete, need %d more bytes", e.Hint)
	}
	return "decoder: incomplete"
}

// NeedMore returns the need-more outcome. A hint <= 0 means unknown.
func NeedMore(hint int) error {
	if hint < 0 {
		hint = 0
	}
	return &NeedMoreError{Hint: hint}
}

// IsNeedMore reports whether err is a need-more outcome.
func IsNeedMore(err error) bool {
	var nm *NeedMoreError
	return errors.As(err, &nm)
}

// NeedMoreHint returns the hint carried by a need-more outcome.
func NeedMoreHint(err error) (int, bool) {
	var nm *NeedMoreError
	if !errors.As(err, &nm) {
		return 0, false
	}
	return nm.Hint, true
}

// DecodeError wraps a strategy failure. The stream cursors are left where they
// were, so the rejected bytes are still available through Stream.Buffered.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decoder: decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Error kinds reported by Kind.
const (
	KindOverflow = "overflow"
	KindClosed   = "closed"
	KindDecode   = "decode"
	KindCanceled = "canceled"
	KindIO       = "io"
)

// Kind classifies an error returned by Stream.Next for logging and metrics.
func Kind(err error) string {
	var de *DecodeError
	switch {
	case errors.Is(err, ErrOverflow):
		return KindOverflow
	case errors.Is(err, ErrConnectionClosed):
		return KindClosed
	case errors.As(err, &de):
		return KindDecode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindIO
	}
}
