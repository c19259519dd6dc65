package auth

import "errors"

var (
	ErrMissingToken     = errors.New("token not provided")
	ErrInvalidToken     = errors.New("invalid token")
	ErrPasswordMismatch = errors.New("password mismatch")
	ErrUnknownScheme    = errors.New("unknown password hash scheme")
)
