package tools

import (
	"errors"
	"fmt"
)

// ErrTenantRequired is returned when a tool runs without a tenant on the
// session. This is a server-side wiring failure, never a caller mistake.
var ErrTenantRequired = errors.New("no tenant set on session")

// UserErrorKind classifies user-visible failures.
type UserErrorKind string

const (
	KindValidation UserErrorKind = "validation"
	KindForbidden  UserErrorKind = "forbidden"
)

// UserError is a caller mistake: bad arguments, invalid tenant ID, or a
// disallowed collection. The message is safe to surface verbatim.
type UserError struct {
	Kind    UserErrorKind
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// NewValidationError creates a user-visible validation error.
func NewValidationError(format string, args ...any) error {
	return &UserError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewForbiddenError creates a user-visible allow-list violation.
func NewForbiddenError(format string, args ...any) error {
	return &UserError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps an unexpected failure inside a tool. Callers see the
// generic message; the wrapped cause is logged, never returned.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// NewInternalError wraps err with a generic tool-scoped message.
func NewInternalError(tool string, err error) error {
	return &InternalError{
		Message: fmt.Sprintf("an internal error occurred in %q", tool),
		Err:     err,
	}
}

// IsUserError reports whether err is safe to show to the caller.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// AsInternal extracts an InternalError if err carries one.
func AsInternal(err error) (*InternalError, bool) {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
