package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ayush/receipt-tracker/backend/internal/response"
)

const msgTooManyRequests = "Trop de requêtes, veuillez réessayer plus tard"

// Counter is the windowed counter behind RateLimit; store.Redis implements it.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// RateLimit allows perMinute requests per client IP and scope. Counter errors
// let the request through.
func RateLimit(counter Counter, scope string, perMinute int, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + scope + ":" + clientIP(r)
			count, err := counter.IncrWithExpire(r.Context(), key, time.Minute)
			if err != nil {
				logger.Warn("rate limit counter", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := perMinute - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if int(count) > perMinute {
				rateLimitedTotal.Inc()
				w.Header().Set("Retry-After", "60")
				response.Error(w, http.StatusTooManyRequests, msgTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. RealIP only rewrites it for
// trusted proxies, so forwarding headers sent by a client are ignored here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
