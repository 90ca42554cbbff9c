package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// RetryPolicy retries GET and HEAD calls that failed without a response or
// with 429, 502, 503 or 504. Streams and WebSocket dials are never retried.
type RetryPolicy struct {
	MaxAttempts    int           // Total attempts, including the first
	InitialBackoff time.Duration // Delay before the first retry
	MaxBackoff     time.Duration // Upper bound for any delay
	BackoffFactor  float64       // Multiplier per attempt
	JitterFactor   float64       // Random jitter factor (0.0 to 1.0)
}

// DefaultRetryPolicy returns a policy with three attempts.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.1,
	}
}

// CalculateBackoff returns the delay after the given zero-based attempt.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		backoff += backoff * p.JitterFactor * (rand.Float64()*2 - 1)
	}

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ShouldRetry reports whether a call that has made attempts attempts and
// failed with err should be sent again.
func (p *RetryPolicy) ShouldRetry(method string, attempts int, err error) bool {
	if err == nil || attempts >= p.MaxAttempts {
		return false
	}
	if !strings.EqualFold(method, http.MethodGet) && !strings.EqualFold(method, http.MethodHead) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		return false
	}
	switch tErr.StatusCode {
	case 0, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
