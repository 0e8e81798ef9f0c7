package ratelimit

import (
	"testing"
	"time"
)

// fixedClock lets tests move time manually.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fixedClock) {
	clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(limit, window)
	l.now = clock.now
	return l, clock
}

func TestLimiter_AllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.Allow("client-a")
		if !d.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
		if d.Remaining != 3-i-1 {
			t.Errorf("Remaining = %d, want %d", d.Remaining, 3-i-1)
		}
	}
}

func TestLimiter_DenyOverLimit(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	l.Allow("client-a")
	l.Allow("client-a")

	d := l.Allow("client-a")
	if d.Allowed {
		t.Fatal("Third request should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within the window", d.RetryAfter)
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("client-a")
	clock.advance(30 * time.Second)
	l.Allow("client-a")

	// Window full: [0s, 30s] within the last minute.
	if d := l.Allow("client-a"); d.Allowed {
		t.Fatal("Window is full, request should be denied")
	}

	// 31 seconds later the first event has left the window.
	clock.advance(31 * time.Second)
	if d := l.Allow("client-a"); !d.Allowed {
		t.Fatal("Oldest event left the window, request should be allowed")
	}
}

func TestLimiter_DeniedNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	l.Allow("client-a")

	// Hammering while denied must not extend the penalty.
	for i := 0; i < 10; i++ {
		clock.advance(5 * time.Second)
		l.Allow("client-a")
	}

	clock.advance(11 * time.Second) // 61s since the only recorded event
	if d := l.Allow("client-a"); !d.Allowed {
		t.Error("Denied attempts must not count against the window")
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Allow("client-a")
	if d := l.Allow("client-b"); !d.Allowed {
		t.Error("client-b should have its own window")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Allow("client-a")
	l.Reset("client-a")

	if d := l.Allow("client-a"); !d.Allowed {
		t.Error("Reset should clear the window")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	l.Allow("client-a")
	l.Allow("client-b")

	clock.advance(2 * time.Minute)

	if removed := l.Cleanup(); removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d after cleanup, want 0", l.Len())
	}
}
