package models

import "errors"

var (
	// ErrNotFound covers both absent entities and entities outside the
	// principal's scope; callers cannot tell the two apart.
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("access denied: insufficient permissions")
	ErrConflict           = errors.New("cannot change your own role")
	ErrDuplicateEmail     = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
