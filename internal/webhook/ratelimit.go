package webhook

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps the tracked keys so rotating sender ids
	// cannot exhaust memory.
	maxTrackedSenders = 4096

	rateLimitWindow  = 60 * time.Second
	rateLimitMaxHits = 30
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// senderRateLimiter bounds inbound messages per sender per minute.
// Safe for concurrent use.
type senderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

func newSenderRateLimiter() *senderRateLimiter {
	return &senderRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

// Allow returns true while the sender stays within the window budget.
// Stale entries are pruned when the table approaches its cap.
func (r *senderRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedSenders {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedSenders {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateLimitWindow {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= rateLimitMaxHits
}
