package server

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Idle clients are forgotten after this long.
const clientIdleExpiry = 10 * time.Minute

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	burst             int
	clients           *gocache.Cache
}

// NewRateLimiter allows requestsPerMinute per client with the given burst.
// A non-positive burst defaults to one.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		clients:           gocache.New(clientIdleExpiry, clientIdleExpiry),
	}
}

// CheckRateLimit consumes one token for clientID or returns a
// *RateLimitError saying when to retry.
func (rl *RateLimiter) CheckRateLimit(clientID string) error {
	if rl.requestsPerMinute <= 0 {
		return nil
	}
	limiter := rl.limiter(clientID)

	now := time.Now()
	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		return &RateLimitError{Limit: rl.requestsPerMinute, RetryAfter: time.Minute}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &RateLimitError{Limit: rl.requestsPerMinute, RetryAfter: delay}
	}
	return nil
}

// Clients reports how many clients are being tracked.
func (rl *RateLimiter) Clients() int { return rl.clients.ItemCount() }

func (rl *RateLimiter) limiter(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.clients.Get(clientID); ok {
		rl.clients.SetDefault(clientID, v)
		return v.(*rate.Limiter)
	}
	every := time.Minute / time.Duration(rl.requestsPerMinute)
	l := rate.NewLimiter(rate.Every(every), rl.burst)
	rl.clients.SetDefault(clientID, l)
	return l
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Limit      int           // requests per minute
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d/min, retry after: %v)", e.Limit, e.RetryAfter)
}
