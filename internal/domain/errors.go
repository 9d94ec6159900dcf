package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing cafe document.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized signals a missing or rejected credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackend signals a search backend failure.
	ErrBackend = errors.New("search backend error")
	// ErrStorage signals a blob storage failure.
	ErrStorage = errors.New("storage error")
	// ErrModeration signals an image classifier failure.
	ErrModeration = errors.New("moderation error")
	// ErrSecretNotFound signals that a named secret is not configured.
	ErrSecretNotFound = errors.New("secret not found")
)

// RateLimitedError wraps ErrRateLimited with a retry hint.
type RateLimitedError struct {
	RetryAfterSec int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited.Error(), e.RetryAfterSec)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NewRateLimited creates a rate limit error carrying the Retry-After hint in seconds.
func NewRateLimited(retryAfterSec int) error {
	return &RateLimitedError{RetryAfterSec: retryAfterSec}
}
