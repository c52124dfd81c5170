package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrInvalidCredentials         = errors.New("invalid credentials")
	ErrTokenExpired               = errors.New("token expired")
	ErrTokenMalformed             = errors.New("token malformed")
	ErrProviderVerificationFailed = errors.New("provider verification failed")
	ErrAccountConflict            = errors.New("account conflict")
	ErrConfiguration              = errors.New("configuration error")

	ErrEmailTaken    = errors.New("email is already taken")
	ErrEmailRequired = errors.New("email is required")
	ErrInvalidInput  = errors.New("invalid input")
)

// ProviderError describes why an identity provider token was rejected.
// The detail is meant for server logs; it matches ErrProviderVerificationFailed.
type ProviderError struct {
	Provider AuthProvider
	Reason   string
	Err      error
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider AuthProvider, reason string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: reason, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s token rejected: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s token rejected: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderVerificationFailed
}
