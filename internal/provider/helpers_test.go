package provider

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type testKey struct {
	kid  string
	alg  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testKey{kid: kid, alg: "RS256", priv: priv}
}

func (k testKey) jwk() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &k.priv.PublicKey, KeyID: k.kid, Algorithm: k.alg, Use: "sig"}
}

func (k testKey) sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = k.kid
	signed, err := tok.SignedString(k.priv)
	require.NoError(t, err)
	return signed
}

// keyServer serves a JWKS document and counts fetches.
type keyServer struct {
	*httptest.Server

	mu      sync.Mutex
	keys    []jose.JSONWebKey
	status  int
	hold    chan struct{}
	fetches atomic.Int32
}

func newKeyServer(t *testing.T, keys ...testKey) *keyServer {
	t.Helper()
	ks := &keyServer{status: http.StatusOK}
	ks.setKeys(keys...)
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.fetches.Add(1)

		ks.mu.Lock()
		hold := ks.hold
		status := ks.status
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), ks.keys...)}
		ks.mu.Unlock()

		if hold != nil {
			<-hold
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(ks.Close)
	return ks
}

func (ks *keyServer) setKeys(keys ...testKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = ks.keys[:0]
	for _, k := range keys {
		ks.keys = append(ks.keys, k.jwk())
	}
}

func (ks *keyServer) setStatus(status int) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.status = status
}

func (ks *keyServer) holdResponses() chan struct{} {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.hold = make(chan struct{})
	return ks.hold
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
