package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
)

const (
	// GoogleTokenInfoURL is Google's ID token introspection endpoint.
	GoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

	maxTokenInfoBodySize = 64 << 10
)

// googleIssuers lists the issuers Google signs ID tokens with.
var googleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

// GoogleConfig configures Google ID token verification.
type GoogleConfig struct {
	// ClientIDs lists accepted audiences; aud must equal one of them exactly.
	ClientIDs    []string
	TokenInfoURL string
	CertsURL     string
	HTTPClient   *http.Client
}

func (c GoogleConfig) audiences() (map[string]struct{}, error) {
	auds := make(map[string]struct{}, len(c.ClientIDs))
	for _, id := range c.ClientIDs {
		if id != "" {
			auds[id] = struct{}{}
		}
	}
	if len(auds) == 0 {
		return nil, fmt.Errorf("%w: google client id is not set", model.ErrConfiguration)
	}
	return auds, nil
}

func (c GoogleConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

type googleTokenInfo struct {
	Iss           string    `json:"iss"`
	Aud           string    `json:"aud"`
	Sub           string    `json:"sub"`
	Exp           flexInt64 `json:"exp"`
	Email         string    `json:"email"`
	EmailVerified flexBool  `json:"email_verified"`
	Name          string    `json:"name"`
}

// GoogleVerifier validates Google ID tokens through the tokeninfo endpoint.
// Google is the authority on every call; nothing is cached.
type GoogleVerifier struct {
	audiences    map[string]struct{}
	tokenInfoURL string
	client       *http.Client
	now          func() time.Time
	metrics      metrics.Recorder
	logger       *logger.Logger
}

// NewGoogleVerifier creates a tokeninfo-backed verifier.
func NewGoogleVerifier(cfg GoogleConfig, recorder metrics.Recorder, logger *logger.Logger) (*GoogleVerifier, error) {
	auds, err := cfg.audiences()
	if err != nil {
		return nil, err
	}
	endpoint := cfg.TokenInfoURL
	if endpoint == "" {
		endpoint = GoogleTokenInfoURL
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &GoogleVerifier{
		audiences:    auds,
		tokenInfoURL: endpoint,
		client:       cfg.httpClient(),
		now:          time.Now,
		metrics:      recorder,
		logger:       logger,
	}, nil
}

// Verify introspects idToken and checks its audience, issuer and expiry.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (model.GoogleClaims, error) {
	start := time.Now()
	claims, err := v.verify(ctx, idToken)
	if err != nil {
		v.metrics.RecordProviderVerification(string(model.AuthProviderGoogle), metrics.ResultFailure, time.Since(start))
		return model.GoogleClaims{}, err
	}
	v.metrics.RecordProviderVerification(string(model.AuthProviderGoogle), metrics.ResultSuccess, time.Since(start))
	return claims, nil
}

func (v *GoogleVerifier) verify(ctx context.Context, idToken string) (model.GoogleClaims, error) {
	if idToken == "" {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, "empty token", nil)
	}

	info, err := v.introspect(ctx, idToken)
	if err != nil {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, "tokeninfo request failed", err)
	}

	return checkGoogleClaims(googleClaimSet{
		Issuer:        info.Iss,
		Audience:      info.Aud,
		Subject:       info.Sub,
		Expiry:        time.Unix(int64(info.Exp), 0),
		Email:         info.Email,
		EmailVerified: bool(info.EmailVerified),
		Name:          info.Name,
	}, v.audiences, v.now())
}

func (v *GoogleVerifier) introspect(ctx context.Context, idToken string) (googleTokenInfo, error) {
	endpoint, err := url.Parse(v.tokenInfoURL)
	if err != nil {
		return googleTokenInfo{}, fmt.Errorf("failed to parse tokeninfo url: %w", err)
	}
	q := endpoint.Query()
	q.Set("id_token", idToken)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return googleTokenInfo{}, fmt.Errorf("failed to create tokeninfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return googleTokenInfo{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenInfoBodySize))
	if err != nil {
		return googleTokenInfo{}, fmt.Errorf("failed to read tokeninfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return googleTokenInfo{}, fmt.Errorf("tokeninfo returned status %d", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return googleTokenInfo{}, fmt.Errorf("failed to parse tokeninfo response: %w", err)
	}
	return info, nil
}

// googleClaimSet is the subset of Google ID token claims both verifiers check.
type googleClaimSet struct {
	Issuer        string
	Audience      string
	Subject       string
	Expiry        time.Time
	Email         string
	EmailVerified bool
	Name          string
}

func checkGoogleClaims(c googleClaimSet, audiences map[string]struct{}, now time.Time) (model.GoogleClaims, error) {
	if _, ok := audiences[c.Audience]; !ok {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, fmt.Sprintf("audience mismatch: %q", c.Audience), nil)
	}
	if _, ok := googleIssuers[c.Issuer]; !ok {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, fmt.Sprintf("issuer mismatch: %q", c.Issuer), nil)
	}
	if !now.Before(c.Expiry) {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, "token expired", nil)
	}
	if c.Subject == "" {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, "missing subject", nil)
	}
	if c.Email == "" {
		return model.GoogleClaims{}, model.NewProviderError(model.AuthProviderGoogle, "missing email", nil)
	}

	claims := model.GoogleClaims{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
	}
	if c.Name != "" {
		name := c.Name
		claims.Name = &name
	}
	return claims, nil
}
