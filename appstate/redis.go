package appstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the schedule as one JSON string.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisStore creates a store writing to key, "appstate:schedule" when
// empty.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = "appstate:schedule"
	}
	return &RedisStore{redis: client, key: key}
}

func (s *RedisStore) Schedule(ctx context.Context) ([]Entry, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return entries, nil
}

func (s *RedisStore) SaveSchedule(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
