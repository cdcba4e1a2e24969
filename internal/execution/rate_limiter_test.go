package execution_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/execution"
)

func TestRateLimiterAllowsBurstUpToWindowCap(t *testing.T) {
	r := execution.NewRateLimiter()
	start := time.Now()
	for i := 0; i < 5; i++ {
		r.Acquire()
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("expected the first 5 acquires to pass immediately, took %s", elapsed)
	}
}

func TestRateLimiterThrottlesPastWindowCap(t *testing.T) {
	r := execution.NewRateLimiter()
	for i := 0; i < 5; i++ {
		r.Acquire()
	}
	start := time.Now()
	r.Acquire()
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("expected the 6th acquire within the same window to wait for a slot, waited only %s", elapsed)
	}
}

func TestOnBrokerErrorEntersCooldown(t *testing.T) {
	r := execution.NewRateLimiter()
	r.OnBrokerError()

	start := time.Now()
	r.Acquire()
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("expected the first error cooldown (2s) to block acquire, waited only %s", elapsed)
	}
}

func TestOnBrokerSuccessResetsCooldownEscalation(t *testing.T) {
	r := execution.NewRateLimiter()
	r.OnBrokerError()
	r.OnBrokerSuccess()
	r.OnBrokerError()

	// After a success reset, a fresh error should cooldown at the base 2s
	// tier again rather than the escalated 4s tier.
	start := time.Now()
	r.Acquire()
	elapsed := time.Since(start)
	if elapsed < time.Second {
		t.Fatalf("expected at least the base cooldown to apply, waited only %s", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("expected the reset error counter to avoid the escalated cooldown tier, waited %s", elapsed)
	}
}
