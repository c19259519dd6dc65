package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	// ErrCryptoFailure is the only decrypt error callers ever see.
	ErrCryptoFailure    = errors.New("unable to decrypt resource")
	ErrTooManyAttempts  = errors.New("too many attempts")
	ErrRevisionConflict = errors.New("resource was modified concurrently")
	ErrUpstream         = errors.New("upstream service failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
