package service

import "errors"

var (
	// ErrValidation wraps every input problem the caller can fix.
	ErrValidation = errors.New("validation failed")

	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrSelfDelete         = errors.New("cannot delete your own account")
	ErrNotRequeueable     = errors.New("only failed intents can be requeued")
)
