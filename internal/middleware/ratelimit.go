package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis errors.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis errors.
	FailClosed
)

const localSweepEvery = time.Minute

type localEntry struct {
	lim      *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// localBuckets backs rate limiting when the app runs without Redis. A bucket
// idle for longer than its window is full again, so it is dropped.
type localBuckets struct {
	mu        sync.Mutex
	m         map[string]*localEntry
	lastSweep time.Time
}

func (b *localBuckets) allow(key string, limit int, window time.Duration, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= localSweepEvery {
		for k, e := range b.m {
			if now.Sub(e.lastSeen) > e.window {
				delete(b.m, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.m[key]
	if !ok {
		e = &localEntry{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			window: window,
		}
		b.m[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (b *localBuckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}

// Limiter enforces fixed-window limits in Redis, or token buckets in process
// when rdb is nil. A disabled Limiter lets everything through.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
	now     func() time.Time
	local   *localBuckets
}

// NewLimiter builds a Limiter. rdb may be nil.
func NewLimiter(rdb *redis.Client, enabled bool) *Limiter {
	return &Limiter{
		rdb:     rdb,
		enabled: enabled,
		now:     time.Now,
		local:   &localBuckets{m: make(map[string]*localEntry)},
	}
}

// Allow checks if a resource has exceeded its rate limit for id.
// Returns true if allowed, false if limit exceeded.
func (l *Limiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	if limit <= 0 {
		return false, fmt.Errorf("rate limit for %s must be positive", resource)
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	if l.rdb == nil {
		return l.local.allow(key, limit, window, l.now()), nil
	}

	// INCR and set EXPIRE if new
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// Handler returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by authenticated userID when present, otherwise by remote IP.
// It defaults to FailOpen policy.
func (l *Limiter) Handler(limit int, window time.Duration, name ...string) fiber.Handler {
	return l.HandlerWithPolicy(limit, window, FailOpen, name...)
}

// HandlerWithPolicy is Handler with an explicit failure policy.
func (l *Limiter) HandlerWithPolicy(limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid, ok := CurrentUserID(c); ok {
			id = fmt.Sprintf("user:%d", uid)
		} else {
			id = fmt.Sprintf("ip:%s", c.IP())
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, err := l.Allow(c.UserContext(), resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					slog.String("path", c.Path()), slog.String("resource", resource), slog.Any("error", err))
				return fiber.NewError(fiber.StatusServiceUnavailable, "rate limit unavailable")
			}
			return c.Next()
		}

		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests. Please slow down.")
		}
		return c.Next()
	}
}
