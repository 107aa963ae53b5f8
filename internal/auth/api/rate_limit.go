package authapi

import (
	"sync"
	"time"
)

// ipThrottle is a fixed-window per-IP counter for login attempts.
//
// Single-node by design: this protects the password-verify path (argon2 is
// deliberately expensive) from one noisy source, it is not a distributed
// rate limiter.
type ipThrottle struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*ipWindow
}

type ipWindow struct {
	start time.Time
	count int
}

func newIPThrottle(max int, window time.Duration) *ipThrottle {
	return &ipThrottle{
		max:     max,
		window:  window,
		windows: make(map[string]*ipWindow),
	}
}

// Allow records one attempt and reports whether it is within budget.
// When blocked it also returns how long until the window resets.
func (t *ipThrottle) Allow(ip string, now time.Time) (bool, time.Duration) {
	if t == nil || t.max <= 0 {
		return true, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[ip]
	if w == nil || now.Sub(w.start) >= t.window {
		t.windows[ip] = &ipWindow{start: now, count: 1}
		t.sweepLocked(now)
		return true, 0
	}

	w.count++
	if w.count > t.max {
		return false, t.window - now.Sub(w.start)
	}
	return true, 0
}

// sweepLocked drops stale windows so the map stays bounded by active sources.
func (t *ipThrottle) sweepLocked(now time.Time) {
	if len(t.windows) < 4096 {
		return
	}
	for ip, w := range t.windows {
		if now.Sub(w.start) >= t.window {
			delete(t.windows, ip)
		}
	}
}
