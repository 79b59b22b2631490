// Package ratelimit throttles API clients with per-client token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// bucket refills at rate tokens per second up to capacity
type bucket struct {
	capacity   float64
	rate       float64
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
}

func newBucket(r Rule, now time.Time) *bucket {
	c := float64(r.capacity())
	return &bucket{
		capacity:   c,
		rate:       float64(r.Limit) / r.Window.Seconds(),
		tokens:     c,
		lastRefill: now,
		lastUsed:   now,
	}
}

// take refills the bucket and consumes one token when available
func (b *bucket) take(now time.Time) (allowed bool, remaining int, full time.Time, retry time.Duration) {
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastRefill, b.lastUsed = now, now

	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	} else {
		retry = b.after(1 - b.tokens)
	}
	return allowed, int(b.tokens), now.Add(b.after(b.capacity - b.tokens)), retry
}

// after is how long refilling n tokens takes
func (b *bucket) after(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n / b.rate * float64(time.Second))
}

// Info describes the limit applied to one request.
type Info struct {
	Allowed    bool
	Limit      int // zero when the request was not limited
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter keeps one bucket per client and matched rule.
type Limiter struct {
	cfg *Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter; a nil config means DefaultConfig. The idle
// bucket sweeper runs until Stop.
func NewLimiter(cfg *Config, opts ...Option) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: map[string]*bucket{},
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.sweep(cfg.CleanupInterval)
	}
	return l
}

// Allow decides whether clientID may make a request to path with method.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	switch {
	case !l.cfg.Enabled, l.cfg.Allowlist[clientID]:
		return true, Info{Allowed: true}
	case l.cfg.Denylist[clientID]:
		return false, Info{}
	}

	rule := Match(path, method, l.cfg.Rules)
	key := clientID + "|default"
	if rule != nil {
		key = clientID + "|" + rule.key()
	} else {
		rule = &l.cfg.Default
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(*rule, now)
		l.buckets[key] = b
	}
	allowed, remaining, full, retry := b.take(now)
	l.mu.Unlock()

	return allowed, Info{
		Allowed:    allowed,
		Limit:      rule.Limit,
		Remaining:  remaining,
		ResetTime:  full,
		RetryAfter: retry,
	}
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.dropIdle()
		case <-l.stop:
			return
		}
	}
}

// dropIdle removes buckets unused for longer than the idle TTL
func (l *Limiter) dropIdle() {
	ttl := l.cfg.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the idle bucket sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
