// ABOUTME: Typed failure taxonomy for inference calls
// ABOUTME: Connection, timeout, malformed response, and cancellation kinds

package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an inference failure. All kinds are recoverable;
// none should crash the process.
type ErrorKind int

const (
	KindConnection ErrorKind = iota // endpoint unreachable
	KindTimeout                     // no response within the bounded wait
	KindMalformed                   // server reply not parseable
	KindCancelled                   // caller withdrew interest
)

// String returns the kind's short name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection_failed"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed_response"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a typed inference failure.
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Endpoint)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an inference Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == kind
}

// classify wraps a transport-level error with the right kind. Context
// cancellation wins over everything: a withdrawn call is cancelled even if
// the transport reported it as a connection reset.
func classify(endpoint string, ctx context.Context, err error) *Error {
	kind := KindConnection
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
	}
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

// malformed builds a malformed-response failure.
func malformed(endpoint string, err error) *Error {
	return &Error{Kind: KindMalformed, Endpoint: endpoint, Err: err}
}
