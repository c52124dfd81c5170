package model

import "github.com/google/uuid"

// TokenManager mints and verifies session tokens.
type TokenManager interface {
	Mint(userID uuid.UUID) (string, error)
	Verify(token string) (uuid.UUID, error)
}

// PasswordHasher hashes and compares account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
