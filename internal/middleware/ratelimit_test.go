package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	l := NewLimiter(nil, false)
	for i := 0; i < 5; i++ {
		allowed, err := l.Allow(context.Background(), "login", "ip:1", 1, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestLimiter_EnabledIgnoresAppEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	l := NewLimiter(nil, true)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "login", "ip:1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = l.Allow(ctx, "login", "ip:1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLimiter_Redis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "search", "ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}
	allowed, err := l.Allow(ctx, "search", "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.True(t, mr.TTL("rl:search:ip:1") > 0)

	mr.FastForward(time.Minute + time.Second)
	allowed, err = l.Allow(ctx, "search", "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_LocalFallback(t *testing.T) {
	l := NewLimiter(nil, true)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "local-fallback", "ip:9", 2, time.Hour)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _ = l.Allow(ctx, "local-fallback", "ip:9", 2, time.Hour)
	assert.True(t, allowed)
	allowed, _ = l.Allow(ctx, "local-fallback", "ip:9", 2, time.Hour)
	assert.False(t, allowed)
}

func TestLimiter_LocalBucketsEvictIdleKeys(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(nil, true)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		_, err := l.Allow(ctx, "search", fmt.Sprintf("ip:10.0.%d.%d", i/250, i%250), 30, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 500, l.local.len())

	now = now.Add(2 * time.Minute)
	allowed, err := l.Allow(ctx, "search", "ip:10.9.9.9", 30, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, l.local.len())
}

func TestLimiter_LocalBucketsKeepActiveKeys(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(nil, true)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, _ := l.Allow(ctx, "login", "ip:1", 1, time.Hour)
	require.True(t, allowed)

	now = now.Add(2 * time.Minute)
	allowed, _ = l.Allow(ctx, "login", "ip:1", 1, time.Hour)
	assert.False(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("Disabled limiter passes", func(t *testing.T) {
		app := fiber.New()
		app.Get("/test", NewLimiter(nil, false).Handler(1, time.Minute), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		for i := 0; i < 3; i++ {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			_ = resp.Body.Close()
		}
	})

	t.Run("Blocks over limit", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		app := fiber.New()
		app.Post("/login", NewLimiter(rdb, true).Handler(1, time.Minute, "login"), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})

	t.Run("FailClosed when redis is down", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		mr.Close()

		app := fiber.New()
		app.Get("/sensitive", NewLimiter(rdb, true).HandlerWithPolicy(1, time.Minute, FailClosed), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sensitive", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("FailOpen when redis is down", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		mr.Close()

		app := fiber.New()
		app.Get("/open", NewLimiter(rdb, true).Handler(1, time.Minute), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/open", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
