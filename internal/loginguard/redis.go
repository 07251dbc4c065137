package loginguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cmdable is the subset of *redis.Client the guard needs.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis is a fixed-window failure counter shared by every API instance.
type Redis struct {
	rdb  Cmdable
	opts Options
}

func NewRedis(rdb Cmdable, opts Options) *Redis {
	return &Redis{rdb: rdb, opts: opts.withDefaults()}
}

func (g *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	count, err := g.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("loginguard: get %s: %w", key, err)
	}

	if count < g.opts.MaxFailures {
		return true, 0, nil
	}

	ttl, err := g.rdb.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("loginguard: ttl %s: %w", key, err)
	}

	// -1 means the counter lost its expiry; treat as a full window
	if ttl <= 0 {
		ttl = g.opts.Window
	}

	return false, ttl, nil
}

func (g *Redis) Failure(ctx context.Context, key string) error {
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("loginguard: incr %s: %w", key, err)
	}

	// first failure opens the window
	if n == 1 {
		if err := g.rdb.Expire(ctx, key, g.opts.Window).Err(); err != nil {
			return fmt.Errorf("loginguard: expire %s: %w", key, err)
		}
	}

	return nil
}

func (g *Redis) Reset(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("loginguard: del %s: %w", key, err)
	}
	return nil
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Dial builds the shared client. Short timeouts keep a slow Redis from
// stalling login requests; the caller logs and fails open instead.
func Dial(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}
