package router

import (
	"sync"
	"time"
)

// rateWindow is the sliding window over which the per-user cap applies.
const rateWindow = time.Minute

// RateLimiter enforces a sliding-window request cap per user key. Each key
// owns its own window slice and lock, so heavy traffic from one user never
// contends with another.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*userWindow

	limit  int
	window time.Duration
	now    func() time.Time
}

type userWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*userWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (r *RateLimiter) forKey(key string) *userWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[key]
	if !ok {
		w = &userWindow{}
		r.windows[key] = w
	}
	return w
}

// Allow records a request for key and reports whether it is within the
// limit. Timestamps older than the window are discarded on each call.
func (r *RateLimiter) Allow(key string) bool {
	w := r.forKey(key)
	now := r.now()
	cutoff := now.Add(-r.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= r.limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Cleanup drops keys whose windows are fully expired.
func (r *RateLimiter) Cleanup() int {
	cutoff := r.now().Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, w := range r.windows {
		w.mu.Lock()
		empty := len(w.times) == 0 || w.times[len(w.times)-1].Before(cutoff)
		w.mu.Unlock()
		if empty {
			delete(r.windows, key)
			removed++
		}
	}
	return removed
}
