package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/remoteui/internal/logging"
)

// RateLimitConfig limits login attempts on the web endpoint.
type RateLimitConfig struct {
	MaxAttempts int           // attempts per window (default 5)
	Window      time.Duration // sliding window (default 1 minute)
	BlockAfter  int           // consecutive failures before blocking (default 10)
	BlockTime   time.Duration // first block duration, doubled per repeat (default 5 minutes)
}

// DefaultRateLimitConfig returns the default login rate limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 5,
		Window:      time.Minute,
		BlockAfter:  10,
		BlockTime:   5 * time.Minute,
	}
}

const maxBlockTime = 24 * time.Hour

// rateLimiter is a per-IP sliding window limiter with exponential blocking
// after repeated failures.
type rateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	log    *logging.Logger
	now    func() time.Time

	attempts map[string][]time.Time
	failures map[string]int
	blocked  map[string]time.Time // ip -> block expiry
}

func newRateLimiter(config RateLimitConfig, log *logging.Logger) *rateLimiter {
	def := DefaultRateLimitConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.BlockAfter <= 0 {
		config.BlockAfter = def.BlockAfter
	}
	if config.BlockTime <= 0 {
		config.BlockTime = def.BlockTime
	}

	return &rateLimiter{
		config:   config,
		log:      log,
		now:      time.Now,
		attempts: make(map[string][]time.Time),
		failures: make(map[string]int),
		blocked:  make(map[string]time.Time),
	}
}

// checkResult is the outcome of a rate limit check.
type checkResult struct {
	Allowed    bool
	RetryAfter time.Duration
	IsBlocked  bool
	Reason     string
}

// check records an attempt from ip if it is allowed.
func (rl *rateLimiter) check(ip string) checkResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if expiry, ok := rl.blocked[ip]; ok {
		if now.Before(expiry) {
			return checkResult{
				RetryAfter: expiry.Sub(now),
				IsBlocked:  true,
				Reason:     "too many failed attempts",
			}
		}
		delete(rl.blocked, ip)
	}

	recent := rl.pruneLocked(ip, now)
	if len(recent) >= rl.config.MaxAttempts {
		retryAfter := recent[0].Add(rl.config.Window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		rl.log.Debug("login rate limited", "ip", ip, "attempts", len(recent), "retry_after", retryAfter)
		return checkResult{
			RetryAfter: retryAfter,
			Reason:     "rate limit exceeded",
		}
	}

	rl.attempts[ip] = append(recent, now)
	return checkResult{Allowed: true}
}

// pruneLocked drops attempts older than the window and returns the rest.
func (rl *rateLimiter) pruneLocked(ip string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.config.Window)
	kept := rl.attempts[ip][:0]
	for _, ts := range rl.attempts[ip] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = kept
	return kept
}

func (rl *rateLimiter) recordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, ip)
	delete(rl.blocked, ip)
}

// recordFailure counts a failed login. Every BlockAfter consecutive failures
// block the IP, for twice as long as the previous block.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.failures[ip]++
	count := rl.failures[ip]
	if count < rl.config.BlockAfter {
		return
	}

	repeats := (count - rl.config.BlockAfter) / rl.config.BlockAfter
	duration := rl.config.BlockTime << repeats
	if duration > maxBlockTime || duration <= 0 {
		duration = maxBlockTime
	}
	rl.blocked[ip] = rl.now().Add(duration)
	rl.log.Warn("login blocked", "ip", ip, "failures", count, "duration", duration)
}

// cleanup removes expired state; run periodically.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip := range rl.attempts {
		rl.pruneLocked(ip, now)
	}
	for ip, expiry := range rl.blocked {
		if now.After(expiry) {
			delete(rl.blocked, ip)
		}
	}
	for ip := range rl.failures {
		_, isBlocked := rl.blocked[ip]
		_, hasAttempts := rl.attempts[ip]
		if !isBlocked && !hasAttempts {
			delete(rl.failures, ip)
		}
	}
}

// clientIP is the socket address of the request. Proxy headers are only
// consulted when trustProxy is set, since any client can send them.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
