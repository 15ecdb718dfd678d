package relay

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d denied under the limit", i)
		}
	}
	if rl.Allow(now) {
		t.Fatal("event over the limit allowed")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	now := time.Now()

	if !rl.Allow(now) || !rl.Allow(now) {
		t.Fatal("initial events denied")
	}
	if rl.Allow(now.Add(500 * time.Millisecond)) {
		t.Fatal("mid-window event allowed over the limit")
	}
	if !rl.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatal("event after the window slid was denied")
	}
}

func TestRateLimiterDefaultsOnBadInputs(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if !rl.Allow(time.Now()) {
		t.Fatal("limiter with defaulted inputs denied the first event")
	}
}
