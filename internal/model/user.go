package model

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByProvider(ctx context.Context, provider AuthProvider, subject string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	LinkProvider(ctx context.Context, id uuid.UUID, provider AuthProvider, subject string) (User, error)
}

// AuthProvider enumerates the identity providers a user can be linked to.
type AuthProvider string

const (
	// AuthProviderNone marks a password-only account.
	AuthProviderNone AuthProvider = "none"
	// AuthProviderGoogle marks an account linked to a Google subject.
	AuthProviderGoogle AuthProvider = "google"
	// AuthProviderApple marks an account linked to an Apple subject.
	AuthProviderApple AuthProvider = "apple"
)

// SubscriptionStatus enumerates subscription tiers.
type SubscriptionStatus string

const (
	SubscriptionFree    SubscriptionStatus = "free"
	SubscriptionPremium SubscriptionStatus = "premium"
)

// User represents a stored account.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       *string
	AuthProvider       AuthProvider
	AuthProviderID     *string
	Name               *string
	SubscriptionStatus SubscriptionStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// LinkedTo reports whether the account is linked to the given provider subject.
func (u User) LinkedTo(provider AuthProvider, subject string) bool {
	return u.AuthProvider == provider && u.AuthProviderID != nil && *u.AuthProviderID == subject
}

// NormalizeEmail returns the canonical form used as the cross-provider linking key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
