package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of redis.Cmdable used by RedisKV.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisKV stores each key as a plain Redis string under prefix+key.
type RedisKV struct {
	api    redisAPI
	prefix string
	closer func() error
}

func NewRedisKV(api redisAPI, prefix string) (*RedisKV, error) {
	if api == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &RedisKV{api: api, prefix: prefix, closer: func() error { return nil }}, nil
}

// DialRedisKV connects to addr and verifies the connection.
func DialRedisKV(ctx context.Context, addr, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository: redis ping %s: %w", addr, err)
	}
	kv, err := NewRedisKV(client, prefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	kv.closer = client.Close
	return kv, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.api.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("repository: redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.api.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("repository: redis set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.closer()
}
