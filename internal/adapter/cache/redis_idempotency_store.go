package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

// RedisIdempotencyStore keeps checkout keys per buyer. The lock key guards an
// in-flight request; the map key records the order it produced.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string { return "idemp:" + scope + ":" + key }
func mapKey(scope, key string) string  { return "idemp:map:" + scope + ":" + key }

func (s *RedisIdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, &usecase.StorageError{Op: "idempotency lock", Err: err}
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	if err := s.rdb.Set(ctx, mapKey(scope, key), value, s.ttl).Err(); err != nil {
		return &usecase.StorageError{Op: "idempotency remember", Err: err}
	}
	return nil
}

func (s *RedisIdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, mapKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &usecase.StorageError{Op: "idempotency recall", Err: err}
	}
	return val, true, nil
}

// Release drops the lock so a failed request can be retried with the same key.
func (s *RedisIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return &usecase.StorageError{Op: "idempotency release", Err: err}
	}
	return nil
}

var _ usecase.IdempotencyStore = (*RedisIdempotencyStore)(nil)
