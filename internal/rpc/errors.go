package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/geocoder89/forumhub/internal/auth"
)

var ErrNoToken = errors.New("no session token")

// AccessError is a rejected call: Unauthorized(tier) or Forbidden(role).
type AccessError struct {
	Status int
	Tier   Tier
	Role   auth.Role
	Cause  error
}

func (e *AccessError) Error() string {
	if e.Status == http.StatusForbidden {
		return fmt.Sprintf("forbidden: role %q cannot call %s procedures", e.Role, e.Tier)
	}
	return fmt.Sprintf("unauthorized for %s procedure: %v", e.Tier, e.Cause)
}

func (e *AccessError) Unwrap() error { return e.Cause }

func (e *AccessError) envelope() Envelope {
	if e.Status == http.StatusForbidden {
		return Forbidden("You are not allowed to do this")
	}

	switch {
	case errors.Is(e.Cause, ErrNoToken):
		return Unauthorized("Sign in first")
	case errors.Is(e.Cause, auth.ErrExpiredToken):
		return Unauthorized("Session expired, sign in again")
	default:
		return Unauthorized("Invalid session")
	}
}
