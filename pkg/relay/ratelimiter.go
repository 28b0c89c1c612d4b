package relay

import (
	"sync"
	"time"
)

// messageLimiter is a sliding-window limit on inbound frames for one
// session. A desktop client dictating normally sends a few frames per
// second; the limit only exists to stop a looping client from pinning the
// server.
type messageLimiter struct {
	mu        sync.Mutex
	perMinute int
	arrivals  []time.Time
}

func newMessageLimiter(perMinute int) *messageLimiter {
	return &messageLimiter{
		perMinute: perMinute,
	}
}

// Allow records an arrival and reports whether it fits the window.
func (l *messageLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.perMinute <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := l.arrivals[:0]
	for _, at := range l.arrivals {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	l.arrivals = kept

	if len(l.arrivals) >= l.perMinute {
		return false
	}

	l.arrivals = append(l.arrivals, now)
	return true
}
