// Package cache provides Redis-backed caching and session storage. Every
// helper tolerates a nil client so the app runs without Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"quillpost/internal/observability"

	"github.com/redis/go-redis/v9"
)

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// ParseOptions accepts either a redis:// URL or a bare host:port address.
func ParseOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// InitRedis connects to Redis at addr. It returns nil when addr is empty or
// the server is unreachable; callers then run without cache.
func InitRedis(addr string) *redis.Client {
	if addr == "" {
		log.Println("REDIS_URL not set (continuing without cache)")
		return nil
	}
	opts, err := ParseOptions(addr)
	if err != nil {
		log.Printf("Redis connection warning: %v (continuing without cache)", err)
		return nil
	}

	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection warning: %v (continuing without cache)", err)
		_ = client.Close()
		return nil
	}
	log.Println("Redis connected successfully")
	return client
}
