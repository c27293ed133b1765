package balancesync

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoSnapshot is returned by mutations attempted before the balance was loaded.
var ErrNoSnapshot = errors.New("balance not loaded yet")

// ValidationError is a client-side precondition failure. Nothing was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
