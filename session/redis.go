package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session entries in Redis under a key prefix, so the
// session outlives the process that created it.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] backed by the given client. prefix
// sets the key namespace, e.g. "lib" stores the access token at
// "lib:session:authToken".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + ":session:" + string(k)
}

// Get implements [Store].
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, key Key) (string, bool, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return v, true, nil
}

// Set implements [Store]. Entries never expire on their own; the token
// claims decide validity.
func (s *RedisStore) Set(ctx context.Context, key Key, value string) error {
	if err := s.redis.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Remove implements [Store]. Removing a missing key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Apply implements [BatchStore] with a single MULTI/EXEC transaction.
//
//	Performance: 1 round-trip.
func (s *RedisStore) Apply(ctx context.Context, set map[Key]string, remove []Key) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queue(ctx, pipe, set, remove)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ApplyIf implements [CompareStore] with WATCH on the guard key and a
// MULTI/EXEC batch. A concurrent write to the guard aborts the batch.
//
//	Performance: 2 round-trips.
func (s *RedisStore) ApplyIf(ctx context.Context, guard Key, expect string, set map[Key]string, remove []Key) error {
	guardKey := s.key(guard)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, guardKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrSessionChanged
		}
		if err != nil {
			return err
		}
		if v != expect {
			return ErrSessionChanged
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queue(ctx, pipe, set, remove)
			return nil
		})
		return err
	}, guardKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionChanged), errors.Is(err, redis.TxFailedErr):
		return ErrSessionChanged
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (s *RedisStore) queue(ctx context.Context, pipe redis.Pipeliner, set map[Key]string, remove []Key) {
	if len(remove) > 0 {
		keys := make([]string, 0, len(remove))
		for _, k := range remove {
			keys = append(keys, s.key(k))
		}
		pipe.Del(ctx, keys...)
	}
	for k, v := range set {
		pipe.Set(ctx, s.key(k), v, 0)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
