// Package memory keeps users in process memory. It backs local runs and tests
// and enforces the same uniqueness rules as the Postgres schema.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type providerKey struct {
	provider model.AuthProvider
	subject  string
}

type UserRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]model.User
	byEmail    map[string]uuid.UUID
	byProvider map[providerKey]uuid.UUID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[uuid.UUID]model.User),
		byEmail:    make(map[string]uuid.UUID),
		byProvider: make(map[providerKey]uuid.UUID),
	}
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(user), nil
}

func (r *UserRepository) GetByProvider(_ context.Context, provider model.AuthProvider, subject string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProvider[providerKey{provider, subject}]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *UserRepository) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user = clone(user)
	user.Email = model.NormalizeEmail(user.Email)

	if _, ok := r.byID[user.ID]; ok {
		return model.User{}, fmt.Errorf("%w: duplicate id", model.ErrAccountConflict)
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return model.User{}, fmt.Errorf("%w: email", model.ErrAccountConflict)
	}
	key, linked := keyOf(user)
	if linked {
		if _, ok := r.byProvider[key]; ok {
			return model.User{}, fmt.Errorf("%w: provider subject", model.ErrAccountConflict)
		}
	}

	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	if linked {
		r.byProvider[key] = user.ID
	}
	return clone(user), nil
}

func (r *UserRepository) LinkProvider(_ context.Context, id uuid.UUID, provider model.AuthProvider, subject string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}

	key := providerKey{provider, subject}
	if owner, ok := r.byProvider[key]; ok && owner != id {
		return model.User{}, fmt.Errorf("%w: provider subject", model.ErrAccountConflict)
	}

	if old, linked := keyOf(user); linked {
		delete(r.byProvider, old)
	}
	user.AuthProvider = provider
	user.AuthProviderID = &subject
	user.UpdatedAt = time.Now()

	r.byID[id] = user
	r.byProvider[key] = id
	return clone(user), nil
}

func keyOf(user model.User) (providerKey, bool) {
	if user.AuthProviderID == nil {
		return providerKey{}, false
	}
	return providerKey{user.AuthProvider, *user.AuthProviderID}, true
}

// clone copies the pointer fields so callers cannot mutate stored users.
func clone(user model.User) model.User {
	user.PasswordHash = copyString(user.PasswordHash)
	user.AuthProviderID = copyString(user.AuthProviderID)
	user.Name = copyString(user.Name)
	return user
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
