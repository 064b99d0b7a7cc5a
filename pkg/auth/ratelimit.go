package auth

import (
	"sync"
	"time"
)

// RateLimiter decides whether a caller may issue another request.
type RateLimiter interface {
	Allow(id *Identity) bool
}

// TierLimit is the request budget of a service tier.
type TierLimit struct {
	RequestsPerMinute int
	Burst             int
}

// Limiter is an in-process token bucket per subject and tier.
type Limiter struct {
	tiers map[string]TierLimit
	def   TierLimit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter returns a Limiter. Tiers without an entry use def; a limit
// of zero requests per minute disables limiting for the tier.
func NewLimiter(tiers map[string]TierLimit, def TierLimit) *Limiter {
	return &Limiter{
		tiers:   tiers,
		def:     def,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from the caller's bucket.
func (l *Limiter) Allow(id *Identity) bool {
	limit, ok := l.tiers[id.Tier()]
	if !ok {
		limit = l.def
	}
	if limit.RequestsPerMinute <= 0 {
		return true
	}
	burst := float64(limit.Burst)
	if burst < 1 {
		burst = float64(limit.RequestsPerMinute)
	}
	rate := float64(limit.RequestsPerMinute) / 60

	key := id.Subject + "|" + id.Tier()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, last: now}
		l.buckets[key] = b
	}
	b.tokens = min(burst, b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
