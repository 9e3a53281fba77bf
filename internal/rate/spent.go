package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadySpent is returned when a single-use token id was spent before.
var ErrAlreadySpent = errors.New("token already spent")

// Spend marks id as used for ttl and fails with [ErrAlreadySpent] if it was
// already marked. ttl should cover the remaining validity of the token.
func (l *Limiter) Spend(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := l.redis.SetNX(ctx, spentKey(id), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !first {
		return ErrAlreadySpent
	}
	return nil
}

// MemorySpent is the in-process counterpart of [Limiter.Spend] for
// deployments without Redis. Marks are lost on restart.
type MemorySpent struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemorySpent creates an empty set. A nil now uses time.Now.
func NewMemorySpent(now func() time.Time) *MemorySpent {
	if now == nil {
		now = time.Now
	}
	return &MemorySpent{until: make(map[string]time.Time), now: now}
}

// Spend has the semantics of [Limiter.Spend].
func (s *MemorySpent) Spend(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.until[id]; ok && now.Before(exp) {
		return ErrAlreadySpent
	}
	for k, exp := range s.until {
		if !now.Before(exp) {
			delete(s.until, k)
		}
	}
	s.until[id] = now.Add(ttl)
	return nil
}

// Len reports the number of live marks.
func (s *MemorySpent) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.until)
}

func spentKey(id string) string { return "gx:" + id }
