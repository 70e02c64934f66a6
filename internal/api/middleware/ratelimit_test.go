package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventhub-live/server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRateLimitBudgetExhausted(t *testing.T) {
	limit := RateLimit(config.RateLimitConfig{PublicPerMinute: 2})
	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/events", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/events", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitSeparateClients(t *testing.T) {
	limit := RateLimit(config.RateLimitConfig{PublicPerMinute: 1})
	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/api/events", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitSkipsHealthEndpoints(t *testing.T) {
	limit := RateLimit(config.RateLimitConfig{PublicPerMinute: 1})
	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitZeroBudgetUnlimited(t *testing.T) {
	limit := RateLimit(config.RateLimitConfig{AdminPerMinute: 0})
	handler := WithRateLimitTierHandler(TierAdmin)(limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/api/admin", nil)
		req.RemoteAddr = "10.0.0.1:1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
