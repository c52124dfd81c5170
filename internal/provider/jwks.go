package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v3"
	"golang.org/x/sync/singleflight"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
)

const (
	// DefaultJWKSTTL is how long a fetched key set is trusted before a refresh.
	DefaultJWKSTTL = 24 * time.Hour

	maxJWKSBodySize = 1 << 20
)

var errKeyNotFound = errors.New("signing key not found")

// keySet is an immutable snapshot of a provider's signing keys.
type keySet struct {
	keys      map[string]jose.JSONWebKey
	fetchedAt time.Time
}

// JWKSCacheConfig configures a JWKSCache.
type JWKSCacheConfig struct {
	URL        string
	TTL        time.Duration
	HTTPClient *http.Client
	// FetchTimeout bounds a single key set fetch. Defaults to the client timeout or 5s.
	FetchTimeout time.Duration
	Now          func() time.Time
}

// JWKSCache holds a provider's public signing keys.
//
// Lookups load the current snapshot without locking. Refreshes replace the
// snapshot atomically and are deduplicated, so concurrent misses share a
// single in-flight fetch.
type JWKSCache struct {
	url          string
	ttl          time.Duration
	client       *http.Client
	fetchTimeout time.Duration
	now          func() time.Time

	current atomic.Pointer[keySet]
	group   singleflight.Group

	metrics metrics.Recorder
	logger  *logger.Logger
}

// NewJWKSCache creates an empty cache; the first lookup fetches the key set.
func NewJWKSCache(cfg JWKSCacheConfig, recorder metrics.Recorder, logger *logger.Logger) *JWKSCache {
	c := &JWKSCache{
		url:          cfg.URL,
		ttl:          cfg.TTL,
		client:       cfg.HTTPClient,
		fetchTimeout: cfg.FetchTimeout,
		now:          cfg.Now,
		metrics:      recorder,
		logger:       logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultJWKSTTL
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = c.client.Timeout
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = defaultHTTPTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	return c
}

// Key returns the key with the given kid. A stale cache or a missing kid
// forces one synchronous refresh before giving up.
func (c *JWKSCache) Key(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	set := c.current.Load()
	if set != nil && !c.stale(set) {
		if key, ok := set.keys[kid]; ok {
			return key, nil
		}
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		if set != nil {
			if key, ok := set.keys[kid]; ok {
				c.logger.Warn("JWKS cache: refresh failed, serving stale key",
					"url", c.url,
					"kid", kid,
					"fetched_at", set.fetchedAt,
					"error", err.Error())
				return key, nil
			}
		}
		return jose.JSONWebKey{}, err
	}

	key, ok := fresh.keys[kid]
	if !ok {
		return jose.JSONWebKey{}, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
	}
	return key, nil
}

func (c *JWKSCache) stale(set *keySet) bool {
	return c.now().Sub(set.fetchedAt) >= c.ttl
}

// refresh fetches the key set, sharing one fetch among concurrent callers.
// The fetch runs detached from ctx so an abandoned caller does not fail the
// others; ctx only bounds how long this caller waits.
func (c *JWKSCache) refresh(ctx context.Context) (*keySet, error) {
	ch := c.group.DoChan("jwks", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()

		set, err := c.fetch(fetchCtx)
		if err != nil {
			c.metrics.RecordJWKSRefresh(metrics.ResultFailure)
			return nil, err
		}
		c.current.Store(set)
		c.metrics.RecordJWKSRefresh(metrics.ResultSuccess)
		c.logger.Debug("JWKS cache: key set refreshed",
			"url", c.url,
			"keys", len(set.keys))
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to wait for key set refresh: %w", ctx.Err())
	}
}

func (c *JWKSCache) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key set request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key set: %w", err)
	}

	return c.parse(body)
}

// parse decodes a JWKS document key by key so a single unsupported key does
// not discard the whole set.
func (c *JWKSCache) parse(body []byte) (*keySet, error) {
	var raw struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(raw.Keys))
	for _, item := range raw.Keys {
		var key jose.JSONWebKey
		if err := key.UnmarshalJSON(item); err != nil {
			c.logger.Warn("JWKS cache: skipping malformed key",
				"url", c.url,
				"error", err.Error())
			continue
		}
		if key.KeyID == "" || !key.IsPublic() || !key.Valid() {
			continue
		}
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		keys[key.KeyID] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("key set contains no usable signing keys")
	}

	return &keySet{keys: keys, fetchedAt: c.now()}, nil
}
