package git

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable machine-readable error code. The set
// is extensible; callers compare codes, not messages.
type Code string

// Error codes.
const (
	// CodeUnsupportedPlatform: the platform tag is not
	// known to the factory.
	CodeUnsupportedPlatform Code = "UNSUPPORTED_PLATFORM"

	// CodeNotAuthenticated: no credential is set for the
	// platform.
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"

	// CodeAuthFailed: the platform rejected the
	// credential.
	CodeAuthFailed Code = "AUTH_FAILED"

	// CodeNotFound: the requested entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation: the platform rejected the request
	// as invalid (e.g. duplicate branch).
	CodeValidation Code = "VALIDATION_FAILED"

	// CodeRateLimited: the platform throttled the call.
	CodeRateLimited Code = "RATE_LIMITED"

	// CodeTransport: network failure, timeout, or a 5xx
	// response. Eligible for retry.
	CodeTransport Code = "TRANSPORT_ERROR"

	// CodeNotImplemented: the adapter does not support
	// this capability. Stable, so callers can
	// feature-detect instead of guessing.
	CodeNotImplemented Code = "NOT_IMPLEMENTED"

	// CodeCannotDeleteDefaultBranch: local guard against
	// deleting a repository's default branch.
	CodeCannotDeleteDefaultBranch Code = "CANNOT_DELETE_DEFAULT_BRANCH"

	// CodeAllPlatformsFailed: every platform in a
	// fan-out call failed.
	CodeAllPlatformsFailed Code = "ALL_PLATFORMS_FAILED"

	// CodeUnknown: an unexpected failure converted at
	// the outer boundary.
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// Error is the structured failure returned by adapters
// and the orchestration service for every expected
// failure mode.
type Error struct {
	Code      Code
	Message   string
	Platform  Platform
	Details   map[string]any
	Timestamp time.Time
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s: %s", e.Platform, e.Code, e.Message,
	)
}

// NewError builds a stamped Error.
func NewError(
	platform Platform,
	code Code,
	message string,
) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Platform:  platform,
		Timestamp: time.Now(),
	}
}

// Errorf builds a stamped Error with a formatted
// message.
func Errorf(
	platform Platform,
	code Code,
	format string,
	args ...any,
) *Error {
	return NewError(
		platform, code, fmt.Sprintf(format, args...),
	)
}

// WithDetail attaches one key/value pair and returns the
// same error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value

	return e
}

// CodeOf extracts the code from err. Non-structured
// errors map to CodeUnknown; nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}

	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
