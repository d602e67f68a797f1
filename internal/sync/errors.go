package sync

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure. The destination client returns errors
// already carrying a kind; the gatekeeper and executor branch on the kind
// alone and never on provider-specific messages or status codes.
type Kind string

const (
	// KindFeedUnreachable means the ICS feed could not be fetched. The
	// whole run fails; a later run may retry.
	KindFeedUnreachable Kind = "feed_unreachable"
	// KindParse means a calendar body (or an event within it) could not
	// be decoded. Per-event parse failures are counted, not fatal.
	KindParse Kind = "parse_error"
	// KindReauthRequired means the destination credentials are expired or
	// revoked. The run aborts immediately and is never retried.
	KindReauthRequired Kind = "reauth_required"
	// KindTransient covers rate limits, 5xx responses and timeouts.
	// Retried a bounded number of times with backoff.
	KindTransient Kind = "transient_api_error"
	// KindWriteFailed is a per-event destination failure. The failing
	// event is recorded and the run continues.
	KindWriteFailed Kind = "event_write_failed"
	// KindConfig covers unknown sync ids, disabled syncs and invalid
	// configuration values.
	KindConfig Kind = "config_error"
)

// Error is a structured sync failure.
type Error struct {
	Kind Kind
	Op   string // list, create, update, delete, fetch, ...
	Key  string // fingerprint of the affected instance, when per-event
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Key != "" {
		msg += fmt.Sprintf(" key=%s", e.Key)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithKey attaches the affected instance's fingerprint.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// NewError creates an error of the given kind.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// FeedUnreachableError creates a run-fatal fetch error.
func FeedUnreachableError(op string, cause error) *Error {
	return &Error{Kind: KindFeedUnreachable, Op: op, Cause: cause}
}

// ParseError creates a calendar decode error.
func ParseError(op string, cause error) *Error {
	return &Error{Kind: KindParse, Op: op, Cause: cause}
}

// ReauthError creates a credential-expiry error.
func ReauthError(op string, cause error) *Error {
	return &Error{Kind: KindReauthRequired, Op: op, Cause: cause}
}

// TransientError creates a retryable destination error.
func TransientError(op string, cause error) *Error {
	return &Error{Kind: KindTransient, Op: op, Cause: cause}
}

// WriteError creates a per-event destination error.
func WriteError(op string, cause error) *Error {
	return &Error{Kind: KindWriteFailed, Op: op, Cause: cause}
}

// ConfigError creates a configuration error.
func ConfigError(op string, cause error) *Error {
	return &Error{Kind: KindConfig, Op: op, Cause: cause}
}

// KindOf walks the error chain and returns the sync kind, or "" when the
// error carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
