package authgate

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy roots. Every error returned by the Engine matches exactly one of
// these under errors.Is, which is how the HTTP layer picks a status code.
var (
	// ErrValidation marks malformed input. HTTP 400.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a uniqueness clash. HTTP 400.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing resource. HTTP 404.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks missing, bad or stale credentials. HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks an identity whose role is insufficient. HTTP 403.
	ErrForbidden = errors.New("forbidden")
	// ErrInternal marks a backend fault. HTTP 500, generic message.
	ErrInternal = errors.New("internal error")
)

// Leaf errors. The text after the root is the human-readable reason.
var (
	ErrPasswordMismatch   = fmt.Errorf("%w: Passwords not matches", ErrValidation)
	ErrIdentityTaken      = fmt.Errorf("%w: Login or email are used", ErrConflict)
	ErrUserNotFound       = fmt.Errorf("%w: User not found", ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("%w: Password is invalid", ErrUnauthorized)
	ErrTokenInvalid       = fmt.Errorf("%w: Token is invalid", ErrUnauthorized)
	ErrTokenExpired       = fmt.Errorf("%w: Token expired", ErrUnauthorized)
	ErrSubjectUnknown     = fmt.Errorf("%w: User not found", ErrUnauthorized)
	ErrRefreshInvalid     = fmt.Errorf("%w: Bad refresh token", ErrUnauthorized)
	ErrRefreshExpired     = fmt.Errorf("%w: Token is expired", ErrUnauthorized)
	ErrUnauthenticated    = fmt.Errorf("%w: Authentication required", ErrUnauthorized)
	ErrRoleForbidden      = fmt.Errorf("%w: Access denied", ErrForbidden)
)

var (
	// ErrLoginRateLimited is returned when the login throttle rejects an attempt. HTTP 429.
	ErrLoginRateLimited = errors.New("too many login attempts")
	// ErrEngineNotReady is returned by Builder.Build when a required dependency is missing.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Reason returns the client-facing message for err: the text after the taxonomy
// root for leaf errors, and a generic message for internal faults.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "Validation error"
	}
	if errors.Is(err, ErrInternal) {
		return "Internal server error"
	}
	for _, root := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrUnauthorized, ErrForbidden} {
		if errors.Is(err, root) {
			msg := err.Error()
			if reason, ok := strings.CutPrefix(msg, root.Error()+": "); ok {
				return reason
			}
			return msg
		}
	}
	if errors.Is(err, ErrLoginRateLimited) {
		return "Too many login attempts"
	}
	return "Internal server error"
}

// ValidationError lists per-field problems as "field: reason" strings.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Fields, "; ")
}

// Is makes a ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a field problem.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, field+": "+reason)
}

// Err returns e when it holds any field problem, else nil.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
