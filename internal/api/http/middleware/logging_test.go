package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dtroode/wingcoach-server/internal/logger"
)

type statusCounter struct {
	mu    sync.Mutex
	codes []int
}

func (c *statusCounter) RecordProviderVerification(string, string, time.Duration) {}
func (c *statusCounter) RecordJWKSRefresh(string)                                 {}
func (c *statusCounter) RecordSessionIssued()                                     {}
func (c *statusCounter) RecordSessionRejected(string)                             {}

func (c *statusCounter) RecordHTTPStatus(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
}

func TestLogging_Handler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCode  int
		wantLevel string
	}{
		{
			name:      "implicit ok",
			handler:   func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) },
			wantCode:  http.StatusOK,
			wantLevel: "level=INFO",
		},
		{
			name:      "client error",
			handler:   func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			wantCode:  http.StatusUnauthorized,
			wantLevel: "level=WARN",
		},
		{
			name:      "server error",
			handler:   func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantCode:  http.StatusInternalServerError,
			wantLevel: "level=ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			counter := &statusCounter{}
			mw := NewLogging(logger.NewWithWriter(&buf, 0), counter)

			rec := httptest.NewRecorder()
			mw.Handler(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, []int{tt.wantCode}, counter.codes)
			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "path=/auth/login")
			assert.Contains(t, out, "method=POST")
		})
	}
}

func TestStatusRecorder_FirstHeaderWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusCreated, rec.statusCode)
}
