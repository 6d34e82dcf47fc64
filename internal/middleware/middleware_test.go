package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memories-backend/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator map[string]string

func (s stubValidator) ValidateJWT(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	h := AuthMiddleware(stubValidator{"good": "user-1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "user-1", seen)
			} else {
				assert.Empty(t, seen)
				assert.JSONEq(t, `{"error":"`+errorMessage(tt.name)+`","code":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func errorMessage(name string) string {
	switch name {
	case "missing header":
		return "Authorization header required"
	case "unknown token":
		return "Invalid token"
	}
	return "Invalid authorization header format"
}

func TestGetUserID_Empty(t *testing.T) {
	assert.Empty(t, GetUserID(context.Background()))
	assert.Equal(t, "u", GetUserID(WithUserID(context.Background(), "u")))
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(0.001, 2)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	before := testutil.ToFloat64(metrics.RateLimited)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002", ""))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimited))

	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000", ""))
	// forwarded address wins over the socket peer
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1003", "203.0.113.9, 10.0.0.1"))
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.limiter("a")
	now = now.Add(2 * time.Minute)
	l.limiter("b")
	now = now.Add(2 * time.Minute)
	l.evictIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "a")
	assert.Contains(t, l.visitors, "b")
}

func TestRateLimiter_CleanupStopsWithContext(t *testing.T) {
	l := NewRateLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Cleanup(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.7 ,10.0.0.1")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(req))
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	baseRoute := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/items/{id}", "202"))
	baseMissing := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/nowhere", "404"))

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, baseRoute+2, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/items/{id}", "202")))
	assert.Equal(t, baseMissing+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/nowhere", "404")))
	assert.Zero(t, testutil.ToFloat64(metrics.HTTPInflight))
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/friends", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil))
	assert.True(t, called)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
