package appstate

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goGate/internal/cache"
)

// Store persists the schedule as one document.
type Store interface {
	Schedule(ctx context.Context) ([]Entry, error)
	SaveSchedule(ctx context.Context, entries []Entry) error
}

// Config tunes a [Gate].
type Config struct {
	// Bypass skips Check entirely.
	Bypass   bool
	CacheTTL time.Duration
	Now      func() time.Time
}

const scheduleKey = "schedule"

// Gate resolves and enforces the application state.
type Gate struct {
	store  Store
	cfg    Config
	cache  *cache.LRU[string, []Entry]
	writes sync.Mutex
}

func NewGate(store Store, cfg Config) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &Gate{store: store, cfg: cfg}
	if cfg.CacheTTL > 0 {
		g.cache = cache.NewLRU[string, []Entry](1, cfg.CacheTTL, cfg.Now)
	}
	return g
}

// Entries returns the sorted schedule.
func (g *Gate) Entries(ctx context.Context) ([]Entry, error) {
	if g.cache != nil {
		if entries, ok := g.cache.Get(scheduleKey); ok {
			return slices.Clone(entries), nil
		}
	}
	entries, err := g.store.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	if g.cache != nil {
		g.cache.Add(scheduleKey, slices.Clone(entries))
	}
	return entries, nil
}

// Resolve returns the state in effect at now.
func (g *Gate) Resolve(ctx context.Context, now time.Time) (Current, error) {
	entries, err := g.Entries(ctx)
	if err != nil {
		return Current{}, err
	}
	return resolve(entries, now), nil
}

// Schedule merges entry into the schedule and returns the stored list. An
// existing entry at the same instant is replaced. The read cache is cleared
// before Schedule returns.
func (g *Gate) Schedule(ctx context.Context, entry Entry) ([]Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	g.writes.Lock()
	defer g.writes.Unlock()

	entries, err := g.store.Schedule(ctx)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range entries {
		if entries[i].EffectiveFrom.Equal(entry.EffectiveFrom) {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	sortEntries(entries)

	if err := g.store.SaveSchedule(context.WithoutCancel(ctx), entries); err != nil {
		return nil, err
	}
	g.Invalidate()
	return slices.Clone(entries), nil
}

// Invalidate clears the cached schedule.
func (g *Gate) Invalidate() {
	if g.cache != nil {
		g.cache.Purge()
	}
}

// Check resolves the current state and fails with *[BlockedError] when it is
// not in allowed. With Bypass set, Check returns a zero Current and nil
// without reading the store.
func (g *Gate) Check(ctx context.Context, allowed []State, path string) (Current, error) {
	if g.cfg.Bypass {
		return Current{}, nil
	}
	current, err := g.Resolve(ctx, g.cfg.Now())
	if err != nil {
		return Current{}, err
	}
	if !slices.Contains(allowed, current.State) {
		return current, &BlockedError{
			Denied:  current,
			Allowed: slices.Clone(allowed),
			Path:    path,
		}
	}
	return current, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EffectiveFrom.Before(entries[j].EffectiveFrom)
	})
}
