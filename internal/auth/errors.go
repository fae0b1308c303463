package auth

import "errors"

// Messages match what the sign-in form shows to the user.
var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailTaken         = errors.New("User already registered")
	ErrWeakPassword       = errors.New("Password should be at least 6 characters")
	ErrInvalidEmail       = errors.New("Unable to validate email address: invalid format")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthError is an identity failure whose message is safe to show verbatim.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

func authErr(err error) error { return &AuthError{Err: err} }
