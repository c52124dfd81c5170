package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/testutil"
)

func TestJWKSCache_SkipsUnusableKeys(t *testing.T) {
	good := newTestKey(t, "good")
	goodJSON, err := json.Marshal(good.jwk())
	require.NoError(t, err)

	doc := `{"keys":[` +
		`{"kty":"RSA","kid":"broken","n":"!!","e":"AQAB"},` +
		`{"kty":"oct","kid":"symmetric","k":"c2VjcmV0"},` +
		string(goodJSON) +
		`]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	cache := NewJWKSCache(JWKSCacheConfig{URL: srv.URL}, metrics.Nop{}, testutil.MakeNoopLogger())

	key, err := cache.Key(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "RS256", key.Algorithm)

	_, err = cache.Key(context.Background(), "symmetric")
	require.Error(t, err)
	_, err = cache.Key(context.Background(), "broken")
	require.Error(t, err)
}

func TestJWKSCache_EmptySetIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer srv.Close()

	cache := NewJWKSCache(JWKSCacheConfig{URL: srv.URL}, metrics.Nop{}, testutil.MakeNoopLogger())
	_, err := cache.Key(context.Background(), "any")
	require.Error(t, err)
	assert.Nil(t, cache.current.Load())
}

func TestJWKSCache_CallerContextBoundsWait(t *testing.T) {
	ks := newKeyServer(t, newTestKey(t, "k1"))
	release := ks.holdResponses()
	defer close(release)

	cache := NewJWKSCache(JWKSCacheConfig{URL: ks.URL}, metrics.Nop{}, testutil.MakeNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Key(ctx, "k1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJWKSCache_FetchTimeout(t *testing.T) {
	ks := newKeyServer(t, newTestKey(t, "k1"))
	release := ks.holdResponses()
	defer close(release)

	cache := NewJWKSCache(JWKSCacheConfig{
		URL:          ks.URL,
		HTTPClient:   &http.Client{},
		FetchTimeout: 30 * time.Millisecond,
	}, metrics.Nop{}, testutil.MakeNoopLogger())

	start := time.Now()
	_, err := cache.Key(context.Background(), "k1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestJWKSCache_RecordsRefreshMetrics(t *testing.T) {
	ks := newKeyServer(t, newTestKey(t, "k1"))
	reg := prometheus.NewRegistry()
	cache := NewJWKSCache(JWKSCacheConfig{URL: ks.URL}, metrics.NewCollector(reg), testutil.MakeNoopLogger())

	_, err := cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "wingcoach_jwks_refresh_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
