package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedAudience is returned before any side effect when the
	// audience is neither prod nor test.
	ErrUnsupportedAudience = errors.New("unsupported audience: can only handle prod or test")

	// ErrNoConnectivity is returned when the connectivity check fails. No
	// browser is opened and no listener is started.
	ErrNoConnectivity = errors.New("no internet connection")

	// ErrLoginTimeout is returned when no browser callback arrived within the
	// configured callback timeout.
	ErrLoginTimeout = errors.New("timed out waiting for login callback")
)

// AuthenticationFailedError reports a rejected credential exchange.
// Status is 0 when the request never got an answer.
type AuthenticationFailedError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthenticationFailedError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: %d %s", e.Status, e.Body)
}

func (e *AuthenticationFailedError) Unwrap() error {
	return e.Err
}
