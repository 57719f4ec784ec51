package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/alfredhome/alfred/internal/api/models"
)

// DefaultRequestsPerMinute applies when no limit is configured.
const DefaultRequestsPerMinute = 100

// RateLimit limits each client to limit requests per minute. Bearer callers
// are keyed by user, everyone else by real IP.
func RateLimit(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}
	return httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if user := GetUser(r.Context()); user != "" {
		return "user:" + user, nil
	}
	return httprate.KeyByRealIP(r)
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(60))
	models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
		WithInstance(r.URL.Path).
		Write(w)
}
