package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/model"
)

// AccountLinker resolves a verified external identity to exactly one user.
//
// Resolution order: provider subject, then email (linking the provider to the
// account found), then creation. The store's unique indexes on email and on
// the provider pair settle races; a lost race is resolved again instead of
// surfacing as an error.
type AccountLinker struct {
	users  model.UserStore
	logger *logger.Logger
}

func NewAccountLinker(users model.UserStore, logger *logger.Logger) *AccountLinker {
	return &AccountLinker{users: users, logger: logger}
}

// Resolve returns the user for identity, creating one if needed.
func (l *AccountLinker) Resolve(ctx context.Context, identity model.ExternalIdentity) (model.User, error) {
	if identity.Subject == "" {
		return model.User{}, fmt.Errorf("%w: identity without subject", model.ErrInvalidInput)
	}

	user, err := l.resolveExisting(ctx, identity)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, err
	}

	if identity.Email == nil || *identity.Email == "" {
		l.logger.Info("Account linker: cannot create account without email",
			"provider", identity.Provider,
			"subject", identity.Subject)
		return model.User{}, model.ErrEmailRequired
	}

	user, err = l.create(ctx, identity)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrAccountConflict) {
		return model.User{}, err
	}

	l.logger.Info("Account linker: concurrent account creation, resolving again",
		"provider", identity.Provider,
		"subject", identity.Subject)

	user, err = l.resolveExisting(ctx, identity)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.ErrAccountConflict
	}
	return user, err
}

func (l *AccountLinker) resolveExisting(ctx context.Context, identity model.ExternalIdentity) (model.User, error) {
	user, err := l.users.GetByProvider(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by provider: %w", err)
	}

	if identity.Email == nil || *identity.Email == "" {
		return model.User{}, model.ErrNotFound
	}

	user, err = l.users.GetByEmail(ctx, *identity.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	return l.link(ctx, user, identity)
}

func (l *AccountLinker) link(ctx context.Context, user model.User, identity model.ExternalIdentity) (model.User, error) {
	if user.LinkedTo(identity.Provider, identity.Subject) {
		return user, nil
	}
	if !identity.EmailVerified {
		l.logger.Warn("Account linker: refusing to link account on unverified email",
			"user_id", user.ID,
			"provider", identity.Provider,
			"subject", identity.Subject)
		return model.User{}, model.ErrAccountConflict
	}

	linked, err := l.users.LinkProvider(ctx, user.ID, identity.Provider, identity.Subject)
	if err != nil {
		if errors.Is(err, model.ErrAccountConflict) {
			// The subject was attached to some account in the meantime.
			winner, getErr := l.users.GetByProvider(ctx, identity.Provider, identity.Subject)
			if getErr == nil {
				return winner, nil
			}
		}
		return model.User{}, fmt.Errorf("failed to link provider: %w", err)
	}

	l.logger.Info("Account linker: provider linked to existing account",
		"user_id", linked.ID,
		"provider", identity.Provider,
		"previous_provider", user.AuthProvider)

	return linked, nil
}

func (l *AccountLinker) create(ctx context.Context, identity model.ExternalIdentity) (model.User, error) {
	subject := identity.Subject
	now := time.Now()
	user := model.User{
		ID:                 uuid.New(),
		Email:              *identity.Email,
		AuthProvider:       identity.Provider,
		AuthProviderID:     &subject,
		Name:               identity.Name,
		SubscriptionStatus: model.SubscriptionFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := l.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrAccountConflict) {
			return model.User{}, err
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	l.logger.Info("Account linker: account created",
		"user_id", created.ID,
		"provider", identity.Provider)

	return created, nil
}
