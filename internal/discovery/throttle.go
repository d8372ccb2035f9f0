package discovery

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// requestThrottle rate-limits connection requests per origin id.
type requestThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	r        rate.Limit
	burst    int
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRequestThrottle(every time.Duration, burst int) *requestThrottle {
	if burst <= 0 {
		burst = 1
	}
	r := rate.Inf
	if every > 0 {
		r = rate.Every(every)
	}
	return &requestThrottle{
		limiters: make(map[string]*throttleEntry),
		r:        r,
		burst:    burst,
	}
}

func (t *requestThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	entry, ok := t.limiters[key]
	if !ok {
		t.pruneLocked(now)
		entry = &throttleEntry{limiter: rate.NewLimiter(t.r, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// pruneLocked drops origins idle for over ten minutes. Caller must hold t.mu.
func (t *requestThrottle) pruneLocked(now time.Time) {
	cutoff := now.Add(-10 * time.Minute)
	for key, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
		}
	}
}
