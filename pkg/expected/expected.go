// Package expected contains the error type used for problems the user can fix
// (invalid configuration, missing files, failed downloads, ...). These errors
// are reported as a single line without a stack trace.
package expected

import (
	"errors"
	"fmt"
)

// Error is a user-facing configuration error
type Error struct {
	Message string
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	return e.Message
}

// Expected marks this error as a user error
func (e *Error) Expected() bool {
	return true
}

type marker interface {
	Expected() bool
}

// New creates a new expected error with the given message
func New(msg string) error {
	return &Error{Message: msg}
}

// Errorf creates a new expected error with a formatted message
func Errorf(format string, args ...interface{}) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err's chain contains a user error. Besides *Error this accepts any error type
// with an `Expected() bool` method returning true.
func Is(err error) bool {
	var target marker
	return errors.As(err, &target) && target.Expected()
}

// As returns the expected error contained in err's chain (if any)
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
