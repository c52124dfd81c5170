package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/wingcoach-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const userColumns = `id, email, password_hash, auth_provider, auth_provider_id, name, subscription_status, created_at, updated_at`

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, model.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByProvider(ctx context.Context, provider model.AuthProvider, subject string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE auth_provider = $1 AND auth_provider_id = $2`

	user, err := scanUser(r.db.QueryRow(ctx, query, string(provider), subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by provider: %w", err)
	}

	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (` + userColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING ` + userColumns

	saved, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, model.NormalizeEmail(user.Email), user.PasswordHash, string(user.AuthProvider),
		user.AuthProviderID, user.Name, string(user.SubscriptionStatus), user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return model.User{}, conflictOr(err, "failed to create user")
	}

	return saved, nil
}

func (r *UserRepository) LinkProvider(ctx context.Context, id uuid.UUID, provider model.AuthProvider, subject string) (model.User, error) {
	query := `UPDATE users SET auth_provider = $2, auth_provider_id = $3, updated_at = NOW()
			  WHERE id = $1
			  RETURNING ` + userColumns

	saved, err := scanUser(r.db.QueryRow(ctx, query, id, string(provider), subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, conflictOr(err, "failed to link provider")
	}

	return saved, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		user         model.User
		provider     string
		subscription string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &provider, &user.AuthProviderID,
		&user.Name, &subscription, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	user.AuthProvider = model.AuthProvider(provider)
	user.SubscriptionStatus = model.SubscriptionStatus(subscription)
	return user, nil
}
