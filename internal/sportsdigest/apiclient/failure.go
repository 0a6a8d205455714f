package apiclient

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed request.
type FailureKind int

const (
	// RateLimited means the daily budget is spent or the remote answered 429.
	RateLimited FailureKind = iota + 1
	// RemoteError is a non-429 HTTP error, an embedded error list or an unreadable payload.
	RemoteError
	// Unreachable is a network failure or timeout.
	Unreachable
)

func (k FailureKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case RemoteError:
		return "remote_error"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// Failure is the error returned by Client.Request.
type Failure struct {
	Kind   FailureKind
	Source string
	Status int    // HTTP status, 0 when no response was received
	Body   string // truncated response body, if any
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Source, f.Kind)
	if f.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", f.Status)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	} else if f.Body != "" {
		msg += ": " + f.Body
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, or 0 if err is not a *Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// IsRateLimited reports whether err is a RateLimited failure.
func IsRateLimited(err error) bool { return KindOf(err) == RateLimited }
