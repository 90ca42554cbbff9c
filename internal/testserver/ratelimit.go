package testserver

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/maumercado/miri-go/internal/logger"
)

// ClientRateLimiter keeps one token bucket per client address.
type ClientRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClientRateLimiter(limit rate.Limit, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetLimiter returns the bucket for clientID, creating it on first use.
func (crl *ClientRateLimiter) GetLimiter(clientID string) *rate.Limiter {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	l, ok := crl.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(crl.limit, crl.burst)
		crl.limiters[clientID] = l
	}
	return l
}

// RateLimit answers 429 once a client exhausts its bucket.
func RateLimit(crl *ClientRateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				clientID = host
			}

			if !crl.GetLimiter(clientID).Allow() {
				log := logger.ForRequest("testserver", r)
				log.Warn().
					Str("client", clientID).
					Msg("client rate limit exceeded")

				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
