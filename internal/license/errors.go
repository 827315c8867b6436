package license

import (
	"errors"
	"fmt"
)

// Kind is the stable tag identifying a failure class. Kinds are part of the
// API surface: clients branch on them, so values never change.
type Kind string

const (
	// KindInvalidKeyFormat means the supplied license key is not a
	// well-formed UUID.
	KindInvalidKeyFormat Kind = "INVALID_KEY_FORMAT"

	// KindNotFound means no license matched the key or fingerprint.
	KindNotFound Kind = "NOT_FOUND"

	// KindAlreadyBound means the license is bound to a different machine.
	KindAlreadyBound Kind = "ALREADY_BOUND_ELSEWHERE"

	// KindRevoked means the license has been deactivated by the authority.
	KindRevoked Kind = "REVOKED"

	// KindExpired means the license's expiration date is in the past
	// relative to the authority clock.
	KindExpired Kind = "EXPIRED"

	// KindStore means the persistent store could not be reached or the
	// credential was rejected. Safe to retry except where noted on the
	// operation.
	KindStore Kind = "STORE_ERROR"

	// KindNotFoundOrRevoked is the ambiguous result of revoking or
	// reactivating a key that matched no row. The store cannot distinguish
	// a missing record from one already in the requested state.
	KindNotFoundOrRevoked Kind = "NOT_FOUND_OR_ALREADY_REVOKED"
)

// Error is the structured failure returned by every authority operation.
// It carries a human-readable message and a stable Kind; it never causes a
// process exit, callers decide what to do with it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps an underlying store failure.
func StoreError(operation string, err error) *Error {
	return &Error{
		Kind:    KindStore,
		Message: fmt.Sprintf("%s failed: store unavailable", operation),
		Err:     err,
	}
}

// KindOf extracts the Kind from err, or "" when err is not an authority
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
