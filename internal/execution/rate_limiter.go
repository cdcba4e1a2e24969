package execution

import (
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/metrics"
)

const (
	maxOrdersPerWindow = 5
	rateLimitWindow    = time.Second
	maxCooldown        = 30 * time.Second
)

// RateLimiter is a global, shared-across-pairs token bucket: at most
// maxOrdersPerWindow orders per rolling window, tracked via a bounded
// deque of acquire timestamps. Acquire blocks the caller until a slot
// frees up, and an adaptive cooldown kicks in when the broker reports
// rate-limit or IOC errors.
type RateLimiter struct {
	mu              sync.Mutex
	timestamps      []time.Time
	consecutiveErrs int
	cooldownUntil   time.Time
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{}
}

// Acquire blocks until an order slot is available, honoring both the
// rolling 5-per-second window and any active error-cooldown.
func (r *RateLimiter) Acquire() {
	for {
		r.mu.Lock()
		now := time.Now()

		if now.Before(r.cooldownUntil) {
			wait := r.cooldownUntil.Sub(now)
			r.mu.Unlock()
			time.Sleep(wait)
			continue
		}

		cutoff := now.Add(-rateLimitWindow)
		kept := r.timestamps[:0]
		for _, t := range r.timestamps {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.timestamps = kept

		if len(r.timestamps) < maxOrdersPerWindow {
			r.timestamps = append(r.timestamps, now)
			r.mu.Unlock()
			return
		}

		oldest := r.timestamps[0]
		wait := oldest.Add(rateLimitWindow).Sub(now)
		r.mu.Unlock()
		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

// OnBrokerError enters (or extends) a cooldown of min(30, 2*2^(n-1))
// seconds, where n counts consecutive broker errors since the last success.
func (r *RateLimiter) OnBrokerError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrs++
	cooldown := maxCooldown
	if r.consecutiveErrs < 5 {
		seconds := 2 * (1 << (r.consecutiveErrs - 1))
		cooldown = time.Duration(seconds) * time.Second
	}
	r.cooldownUntil = time.Now().Add(cooldown)
	metrics.RateLimiterCooldownsTotal.Inc()
}

// OnBrokerSuccess clears the consecutive-error counter.
func (r *RateLimiter) OnBrokerSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrs = 0
}
