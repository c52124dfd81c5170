package provider

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
	"github.com/dtroode/wingcoach-server/internal/testutil"
)

const testBundleID = "com.example.wingcoach"

func newTestAppleVerifier(t *testing.T, ks *keyServer, clock *testClock) *AppleVerifier {
	t.Helper()
	cache := NewJWKSCache(JWKSCacheConfig{
		URL:        ks.URL,
		TTL:        DefaultJWKSTTL,
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
		Now:        clock.Now,
	}, metrics.Nop{}, testutil.MakeNoopLogger())

	v, err := NewAppleVerifier(testBundleID, cache, metrics.Nop{}, testutil.MakeNoopLogger())
	require.NoError(t, err)
	v.now = clock.Now
	return v
}

func appleClaims(clock *testClock, sub string) jwt.MapClaims {
	now := clock.Now()
	return jwt.MapClaims{
		"iss": AppleIssuer,
		"aud": testBundleID,
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
	}
}

func TestNewAppleVerifier_RequiresBundleID(t *testing.T) {
	_, err := NewAppleVerifier("", &JWKSCache{}, nil, testutil.MakeNoopLogger())
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestAppleVerifier_Verify_Success(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	claims := appleClaims(clock, "a-1")
	claims["email"] = "c@x.com"
	claims["email_verified"] = "true"
	claims["is_private_email"] = false

	got, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, claims))
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.Subject)
	require.NotNil(t, got.Email)
	assert.Equal(t, "c@x.com", *got.Email)
	assert.True(t, got.EmailVerified)
	assert.False(t, got.IsPrivateEmail)
}

func TestAppleVerifier_Verify_WithoutEmail(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	got, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.Subject)
	assert.Nil(t, got.Email)
}

func TestAppleVerifier_Verify_Rejections(t *testing.T) {
	key := newTestKey(t, "k1")
	stranger := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()

	rs384 := key
	rs384.alg = "RS384"

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty token",
			token: func(t *testing.T) string { return "" },
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "a.b.c" },
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := appleClaims(clock, "a-1")
				c["iss"] = "https://evil.example.com"
				return key.sign(t, jwt.SigningMethodRS256, c)
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := appleClaims(clock, "a-1")
				c["aud"] = "com.other.app"
				return key.sign(t, jwt.SigningMethodRS256, c)
			},
		},
		{
			name: "extra audience",
			token: func(t *testing.T) string {
				c := appleClaims(clock, "a-1")
				c["aud"] = []string{testBundleID, "com.other.app"}
				return key.sign(t, jwt.SigningMethodRS256, c)
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := appleClaims(clock, "a-1")
				c["exp"] = clock.Now().Add(-time.Second).Unix()
				return key.sign(t, jwt.SigningMethodRS256, c)
			},
		},
		{
			name: "missing exp",
			token: func(t *testing.T) string {
				c := appleClaims(clock, "a-1")
				delete(c, "exp")
				return key.sign(t, jwt.SigningMethodRS256, c)
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, ""))
			},
		},
		{
			name: "signed by another key with the same kid",
			token: func(t *testing.T) string {
				return stranger.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1"))
			},
		},
		{
			name: "algorithm differs from the key's",
			token: func(t *testing.T) string {
				return rs384.sign(t, jwt.SigningMethodRS384, appleClaims(clock, "a-1"))
			},
		},
		{
			name: "alg none",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, appleClaims(clock, "a-1"))
				tok.Header["kid"] = "k1"
				s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "hmac with a shared secret",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, appleClaims(clock, "a-1"))
				tok.Header["kid"] = "k1"
				s, err := tok.SignedString([]byte("guessable"))
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestAppleVerifier(t, ks, clock)
			_, err := v.Verify(context.Background(), tt.token(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrProviderVerificationFailed)
		})
	}
}

func TestAppleVerifier_CacheHit(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	assert.Equal(t, int32(1), ks.fetches.Load())
}

func TestAppleVerifier_UnknownKidForcesOneRefresh(t *testing.T) {
	key := newTestKey(t, "k1")
	unknown := newTestKey(t, "k-unknown")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	_, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)
	require.Equal(t, int32(1), ks.fetches.Load())

	_, err = v.Verify(context.Background(), unknown.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.ErrorIs(t, err, model.ErrProviderVerificationFailed)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestAppleVerifier_KeyRotation(t *testing.T) {
	oldKey := newTestKey(t, "k1")
	newKey := newTestKey(t, "k2")
	ks := newKeyServer(t, oldKey)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	_, err := v.Verify(context.Background(), oldKey.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)

	ks.setKeys(oldKey, newKey)

	got, err := v.Verify(context.Background(), newKey.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-2")))
	require.NoError(t, err)
	assert.Equal(t, "a-2", got.Subject)
	assert.Equal(t, int32(2), ks.fetches.Load())

	_, err = v.Verify(context.Background(), oldKey.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestAppleVerifier_StaleCacheRefreshes(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	_, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)

	clock.Advance(DefaultJWKSTTL + time.Minute)

	_, err = v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestAppleVerifier_StaleKeyServedWhenRefreshFails(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	_, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)

	ks.setStatus(http.StatusServiceUnavailable)
	clock.Advance(DefaultJWKSTTL + time.Minute)

	_, err = v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestAppleVerifier_KeyEndpointDown(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	ks.setStatus(http.StatusInternalServerError)
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)

	_, err := v.Verify(context.Background(), key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1")))
	require.ErrorIs(t, err, model.ErrProviderVerificationFailed)
}

func TestAppleVerifier_ConcurrentMissesShareOneFetch(t *testing.T) {
	key := newTestKey(t, "k1")
	ks := newKeyServer(t, key)
	release := ks.holdResponses()
	clock := newTestClock()
	v := newTestAppleVerifier(t, ks, clock)
	token := key.sign(t, jwt.SigningMethodRS256, appleClaims(clock, "a-1"))

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return ks.fetches.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), ks.fetches.Load())
}
