package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisWrapper wraps the subset of Redis commands the conversation store
// uses with a circuit breaker. redis.Nil is not a breaker failure.
type RedisWrapper struct {
	client *redis.Client
	b      *Breaker
}

// NewRedisWrapper creates a Redis wrapper with breaker and metrics.
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	b := New("redis", instrument("redis", "conversation-store", RedisConfig()), logger)
	return &RedisWrapper{client: client, b: b}
}

func (rw *RedisWrapper) run(ctx context.Context, cmdErr func() error) error {
	err := rw.b.Execute(ctx, func() error {
		if e := cmdErr(); e != nil && e != redis.Nil {
			return e
		}
		return nil
	})
	recordRequest("redis", "conversation-store", err == nil)
	return err
}

// Ping wraps Redis Ping.
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	if err := rw.run(ctx, func() error {
		cmd = rw.client.Ping(ctx)
		return cmd.Err()
	}); err != nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Get wraps Redis Get.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var cmd *redis.StringCmd
	if err := rw.run(ctx, func() error {
		cmd = rw.client.Get(ctx, key)
		return cmd.Err()
	}); err != nil {
		cmd = redis.NewStringCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Set wraps Redis Set.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	if err := rw.run(ctx, func() error {
		cmd = rw.client.Set(ctx, key, value, expiration)
		return cmd.Err()
	}); err != nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Del wraps Redis Del.
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var cmd *redis.IntCmd
	if err := rw.run(ctx, func() error {
		cmd = rw.client.Del(ctx, keys...)
		return cmd.Err()
	}); err != nil {
		cmd = redis.NewIntCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Keys wraps Redis Keys.
func (rw *RedisWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	var cmd *redis.StringSliceCmd
	if err := rw.run(ctx, func() error {
		cmd = rw.client.Keys(ctx, pattern)
		return cmd.Err()
	}); err != nil {
		cmd = redis.NewStringSliceCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Breaker exposes the underlying breaker for health reporting.
func (rw *RedisWrapper) Breaker() *Breaker { return rw.b }

// Close closes the underlying Redis client.
func (rw *RedisWrapper) Close() error { return rw.client.Close() }
