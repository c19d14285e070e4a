package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

// RedisRecoveryStore keeps one password recovery code per email as a hash
// that expires together with the code.
type RedisRecoveryStore struct {
	rdb *redis.Client
}

func NewRedisRecoveryStore(rdb *redis.Client) *RedisRecoveryStore {
	return &RedisRecoveryStore{rdb: rdb}
}

func recoveryKey(email string) string { return "recovery:" + email }

func (s *RedisRecoveryStore) Save(ctx context.Context, email string, rc usecase.RecoveryCode) error {
	key := recoveryKey(email)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code", rc.Code,
			"expires_at", rc.ExpiresAt.UTC().Format(time.RFC3339Nano),
			"attempts", rc.Attempts,
		)
		p.ExpireAt(ctx, key, rc.ExpiresAt)
		return nil
	})
	if err != nil {
		return &usecase.StorageError{Op: "recovery save", Err: err}
	}
	return nil
}

func (s *RedisRecoveryStore) Get(ctx context.Context, email string) (*usecase.RecoveryCode, error) {
	vals, err := s.rdb.HGetAll(ctx, recoveryKey(email)).Result()
	if err != nil {
		return nil, &usecase.StorageError{Op: "recovery get", Err: err}
	}
	if len(vals) == 0 {
		return nil, usecase.ErrRecoveryCodeNotFound
	}
	exp, err := time.Parse(time.RFC3339Nano, vals["expires_at"])
	if err != nil {
		return nil, &usecase.StorageError{Op: "recovery get", Err: err}
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	return &usecase.RecoveryCode{Code: vals["code"], ExpiresAt: exp, Attempts: attempts}, nil
}

// incrAttempts only touches a live hash, so an expired code is never
// recreated as a counter without TTL.
var incrAttempts = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

func (s *RedisRecoveryStore) IncrAttempts(ctx context.Context, email string) (int, error) {
	v, err := incrAttempts.Run(ctx, s.rdb, []string{recoveryKey(email)}).Int64()
	if err != nil {
		return 0, &usecase.StorageError{Op: "recovery attempts", Err: err}
	}
	if v < 0 {
		return 0, usecase.ErrRecoveryCodeNotFound
	}
	return int(v), nil
}

func (s *RedisRecoveryStore) Delete(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, recoveryKey(email)).Err(); err != nil {
		return &usecase.StorageError{Op: "recovery delete", Err: err}
	}
	return nil
}

var _ usecase.RecoveryCodeStore = (*RedisRecoveryStore)(nil)
