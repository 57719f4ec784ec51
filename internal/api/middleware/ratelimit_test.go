package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(handler http.Handler, remoteAddr, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/travel/nextbus", http.NoBody)
	req.RemoteAddr = remoteAddr
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimit(3)(okHandler())

	for i := range 3 {
		assert.Equal(t, http.StatusOK, get(handler, "10.0.0.1:1234", "").Code, "request %d", i+1)
	}

	rec := get(handler, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Contains(t, rec.Body.String(), `"success":false`)

	assert.Equal(t, http.StatusOK, get(handler, "10.0.0.2:1234", "").Code, "other clients are unaffected")
}

func TestRateLimit_ZeroUsesDefault(t *testing.T) {
	handler := middleware.RateLimit(0)(okHandler())
	for range middleware.DefaultRequestsPerMinute {
		require.Equal(t, http.StatusOK, get(handler, "10.1.0.1:1", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(handler, "10.1.0.1:1", "").Code)
}

func TestRateLimit_KeysBearerCallersByUser(t *testing.T) {
	jwtSvc := auth.NewJWTService(auth.JWTConfig{SigningKey: "k"})
	authenticator := auth.NewAuthenticator(auth.AuthenticatorConfig{JWT: jwtSvc})
	jp, _, err := jwtSvc.GenerateAccessToken("JP")
	require.NoError(t, err)
	fran, _, err := jwtSvc.GenerateAccessToken("Fran")
	require.NoError(t, err)

	handler := newAuth(authenticator)(middleware.RateLimit(1)(okHandler()))

	assert.Equal(t, http.StatusOK, get(handler, "10.2.0.1:1", jp).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(handler, "10.2.0.2:1", jp).Code, "same user from another IP")
	assert.Equal(t, http.StatusOK, get(handler, "10.2.0.1:1", fran).Code, "another user from the same IP")
}
