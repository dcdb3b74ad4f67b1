package infra

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu          sync.Mutex
	tokens      float64
	maxTokens   float64
	refillRate  float64 // tokens per second
	lastRefill  time.Time
	minInterval time.Duration // minimum time between requests
	lastRequest time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		tokens:      float64(maxRequests),
		maxTokens:   float64(maxRequests),
		refillRate:  perSecond,
		lastRefill:  now,
		minInterval: time.Duration(float64(time.Second) / perSecond),
		lastRequest: now.Add(-time.Hour), // Allow immediate first request
	}
}

// Wait blocks until a token is available.
// Returns immediately if a token is available.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	for r.tokens < 1 {
		// Calculate wait time for next token
		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()
		time.Sleep(waitTime)
		r.mu.Lock()
		r.refill()
	}

	r.tokens--
	r.lastRequest = time.Now()
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		r.lastRequest = time.Now()
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// Pre-configured per-vendor limiters for the REST order paths.
var (
	bitgetOrderLimiter *RateLimiter
	tradierLimiter     *RateLimiter
	rateLimiterOnce    sync.Once
)

// GetBitgetOrderLimiter returns the rate limiter for Bitget order
// endpoints (place/cancel). Limit: 10 requests/second with burst of 5.
func GetBitgetOrderLimiter() *RateLimiter {
	rateLimiterOnce.Do(initVendorLimiters)
	return bitgetOrderLimiter
}

// GetTradierLimiter returns the rate limiter shared by Tradier order
// and snapshot endpoints. Limit: 2 requests/second with burst of 2,
// well under the vendor's 120/min account cap.
func GetTradierLimiter() *RateLimiter {
	rateLimiterOnce.Do(initVendorLimiters)
	return tradierLimiter
}

func initVendorLimiters() {
	// Conservative limits to avoid IP bans
	bitgetOrderLimiter = NewRateLimiter(5, 10) // 10 req/s, burst 5
	tradierLimiter = NewRateLimiter(2, 2)      // 2 req/s, burst 2
}
