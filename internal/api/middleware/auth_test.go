package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/auth"
)

const (
	testAppKey     = "shared-app-key"
	testSigningKey = "test-secret-key-for-testing-only"
)

func newAuth(a *auth.Authenticator) func(http.Handler) http.Handler {
	return middleware.Auth(a, zerolog.Nop())
}

func testAuthenticator() (*auth.Authenticator, *auth.JWTService) {
	jwtSvc := auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey})
	return auth.NewAuthenticator(auth.AuthenticatorConfig{AppKey: testAppKey, JWT: jwtSvc}), jwtSvc
}

func TestAuth_AcceptsCredentials(t *testing.T) {
	authenticator, jwtSvc := testAuthenticator()
	token, _, err := jwtSvc.GenerateAccessToken("Fran")
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		header     map[string]string
		wantMethod auth.Method
		wantUser   string
	}{
		{"app_key query parameter", "/travel/tubestatus?line=jubilee&app_key=" + testAppKey, nil, auth.MethodAppKey, ""},
		{"X-API-Key header", "/travel/tubestatus", map[string]string{"X-API-Key": testAppKey}, auth.MethodAppKey, ""},
		{"bearer token", "/travel/getcommute", map[string]string{"Authorization": "Bearer " + token}, auth.MethodBearer, "Fran"},
		{"lowercase bearer", "/travel/getcommute", map[string]string{"Authorization": "bearer " + token}, auth.MethodBearer, "Fran"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.Principal
			handler := newAuth(authenticator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = middleware.GetPrincipal(r.Context())
				assert.Equal(t, tt.wantUser, middleware.GetUser(r.Context()))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantMethod, got.Method)
		})
	}
}

func TestAuth_Rejects(t *testing.T) {
	authenticator, _ := testAuthenticator()
	expired := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Expiry:     time.Minute,
		Now:        func() time.Time { return time.Now().Add(-time.Hour) },
	})
	expiredToken, _, err := expired.GenerateAccessToken("JP")
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		authHeader string
		wantDetail string
	}{
		{"nothing presented", "/travel/nextbus", "", "missing credentials"},
		{"wrong app key", "/travel/nextbus?app_key=nope", "", "There was a problem authenticating you."},
		{"basic auth", "/travel/nextbus", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "/travel/nextbus", "Bearer ", "invalid authorization header format"},
		{"garbage token", "/travel/nextbus", "Bearer invalid.jwt.token", "invalid access token"},
		{"expired token", "/travel/nextbus", "Bearer " + expiredToken, "access token has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newAuth(authenticator)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.wantDetail)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}

func TestAuth_LogsFailuresWithoutSecrets(t *testing.T) {
	authenticator, _ := testAuthenticator()
	var buf bytes.Buffer
	handler := middleware.Auth(authenticator, zerolog.New(&buf))(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/travel/nextbus?app_key=leaked", http.NoBody))

	assert.Contains(t, buf.String(), "authentication failed")
	assert.NotContains(t, buf.String(), "leaked")
}

func TestAuth_DisabledAuthenticatorAllowsAll(t *testing.T) {
	handler := newAuth(auth.NewAuthenticator(auth.AuthenticatorConfig{}))(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/travel/nextbus", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPrincipal_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	_, ok := middleware.GetPrincipal(req.Context())
	assert.False(t, ok)
	assert.Empty(t, middleware.GetUser(req.Context()))
}
