package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token bucket. Keys idle for longer than idleTTL are
// dropped on the next sweep.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*entry
	capacity int
	refill   rate.Limit
	idleTTL  time.Duration
	lastGC   time.Time
	now      func() time.Time
}

// New returns a limiter allowing bursts of capacity and refillPerSec
// sustained requests per key. A non-positive capacity disables limiting.
func New(capacity int, refillPerSec float64) *Limiter {
	return &Limiter{
		m:        make(map[string]*entry),
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (l *Limiter) Enabled() bool { return l != nil && l.capacity > 0 }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.refill, l.capacity)}
		l.m[key] = e
	}
	e.lastSeen = now
	if now.Sub(l.lastGC) > l.idleTTL {
		l.sweep(now)
	}
	return e.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.m, k)
		}
	}
	l.lastGC = now
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
