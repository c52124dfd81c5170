package provider

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
)

const (
	// AppleIssuer is the only accepted iss of Apple identity tokens.
	AppleIssuer = "https://appleid.apple.com"
	// AppleKeysURL publishes Apple's identity token signing keys.
	AppleKeysURL = "https://appleid.apple.com/auth/keys"
)

var appleSigningMethods = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
}

type appleTokenClaims struct {
	jwt.RegisteredClaims
	Email          string   `json:"email"`
	EmailVerified  flexBool `json:"email_verified"`
	IsPrivateEmail flexBool `json:"is_private_email"`
}

// AppleVerifier validates Sign in with Apple identity tokens.
type AppleVerifier struct {
	bundleID string
	keys     *JWKSCache
	now      func() time.Time
	metrics  metrics.Recorder
	logger   *logger.Logger
}

// NewAppleVerifier creates a verifier expecting bundleID as the audience.
func NewAppleVerifier(bundleID string, keys *JWKSCache, recorder metrics.Recorder, logger *logger.Logger) (*AppleVerifier, error) {
	if bundleID == "" {
		return nil, fmt.Errorf("%w: apple bundle id is not set", model.ErrConfiguration)
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: apple key cache is not set", model.ErrConfiguration)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AppleVerifier{
		bundleID: bundleID,
		keys:     keys,
		now:      time.Now,
		metrics:  recorder,
		logger:   logger,
	}, nil
}

// Verify checks the token signature against Apple's published keys and its
// issuer, audience and expiry.
func (v *AppleVerifier) Verify(ctx context.Context, identityToken string) (model.AppleClaims, error) {
	start := time.Now()
	claims, err := v.verify(ctx, identityToken)
	if err != nil {
		v.metrics.RecordProviderVerification(string(model.AuthProviderApple), metrics.ResultFailure, time.Since(start))
		return model.AppleClaims{}, err
	}
	v.metrics.RecordProviderVerification(string(model.AuthProviderApple), metrics.ResultSuccess, time.Since(start))
	return claims, nil
}

func (v *AppleVerifier) verify(ctx context.Context, identityToken string) (model.AppleClaims, error) {
	if identityToken == "" {
		return model.AppleClaims{}, model.NewProviderError(model.AuthProviderApple, "empty token", nil)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(appleSigningMethods),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	tc := &appleTokenClaims{}
	_, err := parser.ParseWithClaims(identityToken, tc, func(t *jwt.Token) (interface{}, error) {
		return v.keyFor(ctx, t)
	})
	if err != nil {
		return model.AppleClaims{}, model.NewProviderError(model.AuthProviderApple, rejectReason(err), err)
	}

	if len(tc.Audience) != 1 || tc.Audience[0] != v.bundleID {
		return model.AppleClaims{}, model.NewProviderError(model.AuthProviderApple,
			fmt.Sprintf("audience mismatch: %v", []string(tc.Audience)), nil)
	}
	if tc.Subject == "" {
		return model.AppleClaims{}, model.NewProviderError(model.AuthProviderApple, "missing subject", nil)
	}

	claims := model.AppleClaims{
		Subject:        tc.Subject,
		EmailVerified:  bool(tc.EmailVerified),
		IsPrivateEmail: bool(tc.IsPrivateEmail),
	}
	if tc.Email != "" {
		email := tc.Email
		claims.Email = &email
	}
	return claims, nil
}

// keyFor resolves the verification key for t and insists that the token's
// declared algorithm is the one the key was published for.
func (v *AppleVerifier) keyFor(ctx context.Context, t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid header")
	}

	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		return nil, err
	}
	if key.Algorithm == "" || key.Algorithm != t.Method.Alg() {
		return nil, fmt.Errorf("algorithm %q does not match key %q algorithm %q", t.Method.Alg(), kid, key.Algorithm)
	}

	pub, ok := key.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %q is not an RSA public key", kid)
	}
	return pub, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "no usable signing key"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "required claim missing"
	default:
		return "invalid token"
	}
}
