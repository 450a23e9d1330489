package carrier

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotAuthenticated is returned by Send before a successful Authenticate.
var ErrNotAuthenticated = errors.New("session not authenticated")

// ErrNoTextsRemaining aborts a run when the carrier reports a zero free-text
// balance; nothing would be delivered.
var ErrNoTextsRemaining = errors.New("no free webtexts remaining on this account")

// AuthError reports a failed login or an expired carrier session.
type AuthError struct {
	Carrier Kind
	// Expired marks a session the carrier dropped mid-run, answered with
	// a single re-authenticate before the error becomes terminal.
	Expired bool
	Cause   error
}

func (e *AuthError) Error() string {
	what := "login failed"
	if e.Expired {
		what = "session expired"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Carrier, what, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Carrier, what)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Reason classifies a send failure.
type Reason string

const (
	ReasonTransport          Reason = "transport"
	ReasonRejectedNumber     Reason = "rejected-number"
	ReasonUnexpectedResponse Reason = "unexpected-response"
	ReasonTimeout            Reason = "timeout"
)

// SendError reports a failure sending one chunk to one number. It is
// recorded against that (number, chunk) pair only and never aborts the rest
// of the run.
type SendError struct {
	Carrier Kind
	Reason  Reason
	Detail  string
	Cause   error
}

func (e *SendError) Error() string {
	s := fmt.Sprintf("%s: send failed (%s)", e.Carrier, e.Reason)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *SendError) Unwrap() error { return e.Cause }

// wrapTransport converts a raw HTTP error into a classified SendError,
// distinguishing timeouts from other transport failures.
func wrapTransport(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	reason := ReasonTransport
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		reason = ReasonTimeout
	}
	return &SendError{Carrier: kind, Reason: reason, Cause: err}
}
