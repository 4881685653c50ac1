package auth

import "errors"

var (
	ErrDuplicateUsername  = errors.New("duplicate username")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("token malformed")
)

var (
	ErrInvalidUsername = errors.New("username is empty after normalization")
	ErrPasswordTooLong = errors.New("password longer than 72 bytes")
)
