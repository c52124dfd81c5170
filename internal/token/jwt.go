package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/model"
)

// MinSecretLength is the shortest signing secret NewJWT accepts.
const MinSecretLength = 32

var insecureSecrets = map[string]struct{}{
	"secret":      {},
	"devsecret":   {},
	"changeme":    {},
	"change-me":   {},
	"jwt-secret":  {},
	"your-secret": {},
}

// Claims represents session token claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"userId"`
}

// JWT implements model.TokenManager backed by HMAC-SHA256.
type JWT struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	now       func() time.Time
}

// Option configures JWT.
type Option func(*JWT)

// WithClock overrides the time source used for minting and verification.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) { j.now = now }
}

// WithIssuer sets the iss claim written to and required from tokens.
func WithIssuer(issuer string) Option {
	return func(j *JWT) { j.issuer = issuer }
}

// NewJWT creates a session token manager. It fails with model.ErrConfiguration
// when the secret is missing, short or a well-known placeholder.
func NewJWT(secretKey string, ttl time.Duration, opts ...Option) (*JWT, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("%w: session signing secret is not set", model.ErrConfiguration)
	}
	if _, ok := insecureSecrets[secretKey]; ok {
		return nil, fmt.Errorf("%w: session signing secret is a known placeholder", model.ErrConfiguration)
	}
	if len(secretKey) < MinSecretLength {
		return nil, fmt.Errorf("%w: session signing secret must be at least %d bytes", model.ErrConfiguration, MinSecretLength)
	}
	if ttl <= 0 {
		ttl = model.DefaultSessionTTL
	}

	j := &JWT{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

// Mint creates a session token for the user.
func (j *JWT) Mint(userID uuid.UUID) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// Verify validates a session token and returns the user ID it was minted for.
// Expired tokens yield model.ErrTokenExpired, everything else model.ErrTokenMalformed.
func (j *JWT) Verify(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%w: %v", model.ErrTokenExpired, err)
		}
		return uuid.Nil, fmt.Errorf("%w: %v", model.ErrTokenMalformed, err)
	}
	if claims.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: missing user id", model.ErrTokenMalformed)
	}

	return claims.UserID, nil
}
