package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/clinical-event-relay/internal/auth"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-at-least-32-characters!", time.Hour)
	token, err := tm.GenerateToken("ipd-service", []string{"H1"})
	require.NoError(t, err)

	var seen *auth.Claims
	handler := JWTMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"valid bearer", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			recorder := serve(handler, req)

			assert.Equal(t, tt.code, recorder.Code)
			if tt.code == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "ipd-service", seen.Service)
				assert.True(t, seen.CanAccessHospital("H1"))
			} else {
				assert.Nil(t, seen)
				var body map[string]string
				require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var fromCtx string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		recorder := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, fromCtx)
		assert.Equal(t, fromCtx, recorder.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-from-producer")
		recorder := serve(handler, req)
		assert.Equal(t, "req-from-producer", fromCtx)
		assert.Equal(t, "req-from-producer", recorder.Header().Get(RequestIDHeader))
	})
}

func TestRequestIDReachesLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})

	handler := RequestID(RequestLogger(logger)(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/namespaces", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	serve(handler, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry["request_id"])
	assert.EqualValues(t, http.StatusNoContent, entry["status_code"])
}

func TestRecoveryLogger(t *testing.T) {
	handler := RecoveryLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("poller exploded")
	}))

	recorder := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "INTERNAL_ERROR")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2})
	t.Cleanup(rl.Stop)
	handler := rl.Middleware(okHandler)

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		return serve(handler, req).Code
	}

	assert.Equal(t, http.StatusNoContent, request("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))

	// Buckets are per client.
	assert.Equal(t, http.StatusNoContent, request("10.0.0.2"))
}

func TestRateLimitByKey_PerService(t *testing.T) {
	rl := NewRateLimitByKey(1, 1)
	t.Cleanup(rl.Stop)
	handler := rl.Middleware(ServiceKey)(okHandler)

	request := func(claims *auth.Claims) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		if claims != nil {
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		return serve(handler, req)
	}

	ipd := &auth.Claims{Service: "ipd-service"}
	opd := &auth.Claims{Service: "opd-service"}

	assert.Equal(t, http.StatusNoContent, request(ipd).Code)
	limited := request(ipd)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, "Too many requests. Please try again later.", body["error"])
	assert.Equal(t, http.StatusNoContent, request(opd).Code)

	// Unauthenticated requests have no key and are not limited here.
	assert.Equal(t, http.StatusNoContent, request(nil).Code)
	assert.Equal(t, http.StatusNoContent, request(nil).Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.168.1.5:4000", "192.168.1.5"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", "198.51.100.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
