package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: conflict")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")

	// ErrInvalidCredentials is the single answer for unknown accounts,
	// inactive accounts and wrong passwords.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
