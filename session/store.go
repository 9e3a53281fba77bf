package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore defines a public type used by goGate APIs.
//
// RedisStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key; an empty
// prefix defaults to "grt".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "grt"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) principalKey(principalID string) string {
	return s.prefix + ":p:" + principalID
}

// FindByID returns the live record for id or [ErrRecordNotFound].
//
//	Performance: 1 Redis GET.
func (s *RedisStore) FindByID(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// UpsertByID writes rec under rec.ID, replacing any previous value, and
// indexes it under its principal.
//
//	Performance: 1 MULTI/EXEC with SET + SADD + EXPIRE.
func (s *RedisStore) UpsertByID(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: already expired", ErrRecordInvalid)
	}

	principalKey := s.principalKey(rec.PrincipalID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.ID), data, ttl)
		pipe.SAdd(ctx, principalKey, rec.ID)
		// every record for a principal shares the configured refresh TTL, so
		// the newest write always carries the furthest expiry
		pipe.Expire(ctx, principalKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteByID removes one record. Deleting a missing record is not an error.
func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	key := s.key(id)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if rec, decodeErr := Decode(data); decodeErr == nil {
			pipe.SRem(ctx, s.principalKey(rec.PrincipalID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteByPrincipal removes every record indexed under principalID.
//
// ATOMICITY NOTE: the index is read with SMEMBERS before the MULTI/EXEC that
// deletes the records. A record written between the two steps survives and
// expires on its own.
func (s *RedisStore) DeleteByPrincipal(ctx context.Context, principalID string) error {
	principalKey := s.principalKey(principalID)

	ids, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, principalKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ActiveIDs lists the ids currently indexed for principalID, including ids
// whose record already expired.
func (s *RedisStore) ActiveIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Ping measures a Redis round trip.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
