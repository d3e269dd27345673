package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	for i := range 3 {
		require.NoError(t, rl.CheckRateLimit("client"), "request %d", i)
	}

	err := rl.CheckRateLimit("client")
	require.Error(t, err)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 60, rle.Limit)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rle.RetryAfter, time.Second)
	assert.Contains(t, rle.Error(), "rate limit exceeded")
}

func TestRateLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	rl := NewRateLimiter(600, 1) // one token every 100ms

	require.NoError(t, rl.CheckRateLimit("c"))
	for range 5 {
		require.Error(t, rl.CheckRateLimit("c"))
	}
	time.Sleep(120 * time.Millisecond)
	assert.NoError(t, rl.CheckRateLimit("c"), "denied calls must not push the next token back")
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	require.NoError(t, rl.CheckRateLimit("a"))
	require.Error(t, rl.CheckRateLimit("a"))
	require.NoError(t, rl.CheckRateLimit("b"))
	assert.Equal(t, 2, rl.Clients())
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for range 100 {
		require.NoError(t, rl.CheckRateLimit("a"))
	}
	assert.Equal(t, 0, rl.Clients())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(60, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.CheckRateLimit("shared") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	// One extra token may refill on a slow runner.
	assert.GreaterOrEqual(t, allowed, 10)
	assert.LessOrEqual(t, allowed, 11)
}
