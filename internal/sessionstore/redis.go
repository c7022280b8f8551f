package sessionstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wagate:session:"

// RedisStore keeps sessions as plain redis strings without expiry.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore parses a redis:// URL and verifies the server answers.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "sessionstore: parse redis url")
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, connErr("ping redis", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) key(k string) string { return redisKeyPrefix + k }

// EnsureSchema has nothing to create for redis.
func (s *RedisStore) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *RedisStore) Put(ctx context.Context, key string, blob []byte) error {
	return connErr("put", s.rdb.Set(ctx, s.key(key), blob, 0).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, connErr("get", err)
	}
	return data, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return connErr("delete", s.rdb.Del(ctx, s.key(key)).Err())
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, connErr("exists", err)
	}
	return n > 0, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) bool {
	return safeHealth(func() bool { return s.rdb.Ping(ctx).Err() == nil })
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
