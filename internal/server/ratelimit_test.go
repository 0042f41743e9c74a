package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thruflo/remoteui/internal/logging"
)

// fakeClock drives a rateLimiter without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg RateLimitConfig) (*rateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiter(cfg, logging.Discard())
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{MaxAttempts: 3, Window: time.Second, BlockAfter: 10, BlockTime: time.Second})
	ip := "192.168.1.1"

	for i := 0; i < 3; i++ {
		assert.True(t, rl.check(ip).Allowed, "attempt %d", i+1)
	}

	result := rl.check(ip)
	assert.False(t, result.Allowed)
	assert.False(t, result.IsBlocked)
	assert.Equal(t, "rate limit exceeded", result.Reason)
	assert.Equal(t, time.Second, result.RetryAfter)

	assert.True(t, rl.check("10.0.0.1").Allowed, "other IPs are independent")

	clock.advance(1100 * time.Millisecond)
	assert.True(t, rl.check(ip).Allowed)
}

func TestRateLimiterBlocksAfterFailures(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{MaxAttempts: 20, Window: time.Minute, BlockAfter: 3, BlockTime: time.Minute})
	ip := "192.168.1.3"

	for i := 0; i < 3; i++ {
		rl.recordFailure(ip)
	}

	result := rl.check(ip)
	assert.False(t, result.Allowed)
	assert.True(t, result.IsBlocked)
	assert.Equal(t, "too many failed attempts", result.Reason)
	assert.Equal(t, time.Minute, result.RetryAfter)

	clock.advance(61 * time.Second)
	assert.True(t, rl.check(ip).Allowed)
}

func TestRateLimiterBlockDoubles(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(RateLimitConfig{MaxAttempts: 20, Window: time.Minute, BlockAfter: 2, BlockTime: time.Minute})
	ip := "192.168.1.5"

	for i := 0; i < 4; i++ {
		rl.recordFailure(ip)
	}
	assert.Equal(t, 2*time.Minute, rl.check(ip).RetryAfter)
}

func TestRateLimiterSuccessResetsFailures(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(RateLimitConfig{MaxAttempts: 20, Window: time.Minute, BlockAfter: 5, BlockTime: time.Second})
	ip := "192.168.1.4"

	for i := 0; i < 4; i++ {
		rl.recordFailure(ip)
	}
	rl.recordSuccess(ip)
	for i := 0; i < 4; i++ {
		rl.recordFailure(ip)
	}

	assert.True(t, rl.check(ip).Allowed)
}

func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{MaxAttempts: 5, Window: time.Second, BlockAfter: 1, BlockTime: time.Second})
	rl.check("a")
	rl.recordFailure("b")

	clock.advance(time.Hour)
	rl.cleanup()

	assert.Empty(t, rl.attempts)
	assert.Empty(t, rl.blocked)
	assert.Empty(t, rl.failures)
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{}, logging.Discard())
	assert.Equal(t, DefaultRateLimitConfig(), rl.config)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		trust   bool
		want    string
	}{
		{"remote addr", nil, "192.168.1.1:1234", false, "192.168.1.1"},
		{"remote without port", nil, "192.168.1.1", false, "192.168.1.1"},
		{"forwarded for ignored", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "127.0.0.1:1", false, "127.0.0.1"},
		{"real ip ignored", map[string]string{"X-Real-IP": "10.0.0.9"}, "127.0.0.1:1", false, "127.0.0.1"},
		{"trusted forwarded for", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, "127.0.0.1:1", true, "10.0.0.1"},
		{"trusted real ip", map[string]string{"X-Real-IP": "10.0.0.9 "}, "127.0.0.1:1", true, "10.0.0.9"},
		{"trusted without headers", nil, "127.0.0.1:1", true, "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trust))
		})
	}
}
