/**
 * @description
 * Error taxonomy shared across the service. Every failure that crosses a
 * package boundary carries a machine-readable Kind so the HTTP layer can map
 * it to a status code and the client can distinguish "re-authenticate this
 * broker" from a generic error.
 */
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for API consumers.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindCredentialError     Kind = "credential_error"
	KindCredentialCorrupted Kind = "credential_corrupted"
	KindInvalidExchange     Kind = "invalid_exchange"
	KindCodeMismatch        Kind = "code_mismatch"
	KindTokenExpired        Kind = "token_expired"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindPartialFailure      Kind = "partial_failure"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindInternal            Kind = "internal"
)

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classified error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
