package service

import "errors"

// Sentinel errors mapped to HTTP status codes by the API adapter.
var (
	ErrConfigMissing   = errors.New("speed config has not been set")
	ErrInvalidLocation = errors.New("location out of range")
	ErrWeatherDisabled = errors.New("external weather is disabled")
	ErrStoreWrite      = errors.New("could not persist change")

	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password must be at least 6 characters")
	ErrEmailTaken          = errors.New("email already registered")
	ErrAdminSignupDisabled = errors.New("admin signup is disabled")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUnauthenticated     = errors.New("not signed in")
)
