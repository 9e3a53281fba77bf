package middleware

import (
	"sync"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"golang.org/x/time/rate"
)

// ThrottleConfig sets the per-client token bucket.
type ThrottleConfig struct {
	// PerSecond is the refill rate.
	PerSecond float64
	Burst     int
	// IdleTTL drops buckets of clients not seen for this long.
	IdleTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Throttle limits requests per client IP. Requests without a known IP share
// one bucket.
type Throttle struct {
	cfg ThrottleConfig

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewThrottle creates a [Throttle]. Zero fields default to 10 requests per
// second, a burst of 20 and a five minute idle TTL.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Throttle{
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		lastSweep: cfg.Now(),
	}
}

// Allow consumes one token for ip.
func (t *Throttle) Allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := t.cfg.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > t.cfg.IdleTTL {
		for k, b := range t.buckets {
			if now.Sub(b.seen) > t.cfg.IdleTTL {
				delete(t.buckets, k)
			}
		}
		t.lastSweep = now
	}

	b, ok := t.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(t.cfg.PerSecond), t.cfg.Burst)}
		t.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len reports the number of tracked clients.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// Descriptor returns the pipeline step. A rejected request fails with
// goGate.ErrRateLimited.
func (t *Throttle) Descriptor() goGate.Descriptor {
	return goGate.Pre("throttle", OrderThrottle, func(rc *goGate.RequestContext) error {
		if !t.Allow(goGate.ClientIP(rc.Request.Context())) {
			return goGate.ErrRateLimited
		}
		return nil
	})
}
