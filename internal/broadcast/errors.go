package broadcast

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned synchronously by Listen when it is given a
// nil Handler.
var ErrInvalidArgument = errors.New("broadcast: invalid argument")

// ErrAfterEnd is returned when reply is invoked on a reply channel whose end
// has already been published (spec §4.1, invariant 2).
var ErrAfterEnd = errors.New("broadcast: reply called after end")

// ErrConnectTimeout and ErrIdleTimeout are the sentinel causes surfaced
// through Result.Err when a conversation times out without having received
// any ack or data frame. Their message text (built by newConnectTimeoutError and
// newIdleTimeoutError) is fixed for wire/log compatibility, per spec §7.
var (
	ErrConnectTimeout = errors.New("broadcast: connect timeout")
	ErrIdleTimeout    = errors.New("broadcast: idle timeout")
)

// timeoutError carries the exact message text spec §4.2 requires while
// still unwrapping to one of the two sentinels above so callers can use
// errors.Is.
type timeoutError struct {
	sentinel error
	message  string
}

func (e *timeoutError) Error() string { return e.message }
func (e *timeoutError) Unwrap() error { return e.sentinel }

// newConnectTimeoutError formats the connect-timeout message exactly as
// spec §4.2/§8 requires: "Did not receive a message within the connect
// timeout interval of <connect>ms".
func newConnectTimeoutError(connectMS int64) error {
	return &timeoutError{
		sentinel: ErrConnectTimeout,
		message:  fmt.Sprintf("Did not receive a message within the connect timeout interval of %dms", connectMS),
	}
}

// newIdleTimeoutError preserves the source phrasing from spec §4.2 verbatim
// ("with the idle timeout interval", likely a typo for "within"), since the
// spec's own Open Questions flag it as a deliberate wire-compatibility
// choice rather than an error to silently fix.
func newIdleTimeoutError(idleMS int64) error {
	return &timeoutError{
		sentinel: ErrIdleTimeout,
		message:  fmt.Sprintf("Did not receive a message with the idle timeout interval of %dms", idleMS),
	}
}
