package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/models"
	"github.com/alfredhome/alfred/internal/auth"
)

type principalKey struct{}

const bearerPrefix = "Bearer "

// Auth authenticates requests by bearer token, X-API-Key header or the
// app_key query parameter.
func Auth(authenticator *auth.Authenticator, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := credentials(r)
			if !ok {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			principal, err := authenticator.Authenticate(creds)
			if err != nil {
				log.Warn().
					Str("component", "auth").
					Str("request_id", GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Err(err).
					Msg("authentication failed")

				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				case errors.Is(err, auth.ErrMissingCredentials):
					writeUnauthorized(w, r, "missing credentials")
				default:
					writeUnauthorized(w, r, "There was a problem authenticating you.")
				}
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentials extracts what the request presented. ok is false when an
// Authorization header is present but is not a bearer token.
func credentials(r *http.Request) (auth.Credentials, bool) {
	creds := auth.Credentials{
		AppKey: r.URL.Query().Get("app_key"),
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		creds.AppKey = key
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return creds, true
	}
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return creds, false
	}
	creds.BearerToken = strings.TrimSpace(header[len(bearerPrefix):])
	return creds, creds.BearerToken != ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetPrincipal returns the authenticated caller, if any.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// GetUser returns the bearer token subject, or "" for app key callers.
func GetUser(ctx context.Context) string {
	p, _ := GetPrincipal(ctx)
	return p.User
}
