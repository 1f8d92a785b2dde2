package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state")
	ErrForbidden  = errors.New("forbidden")
	ErrRetryable  = errors.New("temporarily unavailable")
)

// Error carries a user-facing reason next to its kind.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newError(ErrValidation, format, args...) }
func Conflictf(format string, args ...any) error   { return newError(ErrConflict, format, args...) }
func NotFoundf(format string, args ...any) error   { return newError(ErrNotFound, format, args...) }
func Statef(format string, args ...any) error      { return newError(ErrState, format, args...) }
func Forbiddenf(format string, args ...any) error  { return newError(ErrForbidden, format, args...) }
func Retryablef(format string, args ...any) error  { return newError(ErrRetryable, format, args...) }

// Reason returns the user-facing reason carried anywhere in err's chain.
func Reason(err error) (string, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}
