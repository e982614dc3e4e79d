// Package domain defines the core domain models for SigMesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes use the form SM-<AREA>-<NNNN> so transport layers can map them to
// status codes without string matching on messages.
type DomainError struct {
	Code    string // Error code (e.g., "SM-COMM-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether the error describes a transient condition the
// client should retry, such as a sign-in that has not finished verifying.
func IsRetryable(err error) bool {
	return IsDomainError(err, ErrAuthPending.Code) ||
		IsDomainError(err, ErrRateLimited.Code) ||
		IsDomainError(err, ErrServiceUnavailable.Code)
}

// ============================================================================
// Community Errors (COMM)
// ============================================================================

var (
	// ErrCommunityNotFound indicates no registry or durable record exists
	// for the requested community.
	ErrCommunityNotFound = NewDomainError("SM-COMM-4040", "community not found")

	// ErrCommunityConflict indicates the community already exists.
	ErrCommunityConflict = NewDomainError("SM-COMM-4090", "community already exists")

	// ErrCommunityValidation indicates community data validation failed.
	ErrCommunityValidation = NewDomainError("SM-COMM-4001", "community validation failed")

	// ErrCommunityProvision indicates provisioning a new community failed.
	// The originating cause is attached; no partial community is left behind.
	ErrCommunityProvision = NewDomainError("SM-COMM-5000", "community provisioning failed")
)

// ============================================================================
// Authorization Errors (AUTH)
//
// The "not authorized" message is intentionally generic: it covers a missing
// connection, a wrong bound transport, and a closed connection alike, so the
// response does not leak which check failed.
// ============================================================================

var (
	// ErrNotAuthorized indicates the caller holds no joined membership
	// connection bound to the requesting transport.
	ErrNotAuthorized = NewDomainError("SM-AUTH-4010", "not authorized")

	// ErrAuthPending indicates sign-in is still in progress; the caller may
	// retry once membership verification completes.
	ErrAuthPending = NewDomainError("SM-AUTH-4250", "authentication pending")

	// ErrConnectionActive indicates a non-terminal connection already exists
	// for this user on this community.
	ErrConnectionActive = NewDomainError("SM-AUTH-4090", "connection already active")
)

// ============================================================================
// Sync Errors (SYNC)
// ============================================================================

var (
	// ErrSignatureMismatch indicates the entry's claimed author does not
	// match the identity embedded in its signature.
	ErrSignatureMismatch = NewDomainError("SM-SYNC-4030", "author does not match signature")

	// ErrEntryValidation indicates log entry validation failed.
	ErrEntryValidation = NewDomainError("SM-SYNC-4001", "entry validation failed")

	// ErrCursorMalformed indicates a pagination cursor could not be decoded.
	ErrCursorMalformed = NewDomainError("SM-SYNC-4000", "malformed cursor")
)

// ============================================================================
// Key Material Errors (KEYS)
// ============================================================================

var (
	// ErrKeyMaterialInvalid indicates the supplied key material is unusable.
	ErrKeyMaterialInvalid = NewDomainError("SM-KEYS-4001", "invalid key material")

	// ErrKeyMaterialNotFound indicates no sealed key material exists for
	// the community.
	ErrKeyMaterialNotFound = NewDomainError("SM-KEYS-4040", "key material not found")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("SM-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("SM-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("SM-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SM-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("SM-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SM-ARG-1002", "missing required argument")
)
