package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"polar-flow-sync/internal/polar"
)

// RateLimitHeaders attaches informational X-RateLimit-* headers reflecting
// the user's remaining upstream call budget. Purely informational; denial
// happens inside the sync path, never here.
func RateLimitHeaders(tracker *polar.RateLimitTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := chi.URLParam(r, "userID"); userID != "" {
				status := tracker.Status(userID)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(status.ShortLimit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(status.ShortRemaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.ShortResetAt.Unix(), 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}
