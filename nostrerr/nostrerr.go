// Package nostrerr defines the error taxonomy shared by the relay,
// pool and negentropy packages. Every operation that can fail in a
// way callers need to branch on returns (or wraps) an *Error whose
// Kind identifies which branch to take.
package nostrerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, independent of the
// specific relay or event involved.
type Kind int

const (
	// InvalidInput means a malformed id, pubkey, URL or filter was
	// supplied by the caller.
	InvalidInput Kind = iota
	// Protocol means a relay sent an unparseable or out-of-contract
	// frame.
	Protocol
	// Transport means the underlying socket or TLS layer failed.
	Transport
	// Timeout means an operation's deadline elapsed before it could
	// complete.
	Timeout
	// Disconnected means the relay connection is down but may
	// reconnect; retryable.
	Disconnected
	// Terminated means the relay connection has been permanently
	// closed and will not reconnect.
	Terminated
	// AuthRequired means the relay demanded NIP-42 AUTH before
	// continuing.
	AuthRequired
	// PublishRejected means the relay sent OK false for a published
	// event, carrying its reason.
	PublishRejected
	// FeatureUnsupported means a negentropy (or other optional
	// extension) probe failed because the relay doesn't implement it.
	FeatureUnsupported
	// Cancelled means the caller's context was cancelled before the
	// operation finished.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case Protocol:
		return "protocol"
	case Transport:
		return "transport"
	case Timeout:
		return "timeout"
	case Disconnected:
		return "disconnected"
	case Terminated:
		return "terminated"
	case AuthRequired:
		return "auth_required"
	case PublishRejected:
		return "publish_rejected"
	case FeatureUnsupported:
		return "feature_unsupported"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module
// returns for classifiable failures. Relay names the connection
// involved, when applicable.
type Error struct {
	Kind  Kind
	Relay string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Relay != "" {
		return fmt.Sprintf("%s: %s: %s", e.Relay, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// callers can write errors.Is(err, nostrerr.New(nostrerr.Timeout, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error with no relay context.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error carrying cause as the wrapped error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WithRelay builds an *Error scoped to a specific relay URL.
func WithRelay(kind Kind, relay, msg string) *Error {
	return &Error{Kind: kind, Relay: relay, Msg: msg}
}

// Is reports whether err is a *nostrerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
