package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quillpost/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	PostKeyPrefix       = "post:%d"
	postsListGeneration = "posts:list:gen"
	postsListKeyPrefix  = "posts:list:%d:page:%d"
)

const (
	PostTTL      = 30 * time.Minute
	PostsListTTL = 2 * time.Minute
)

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// Store is a nil-tolerant cache over a Redis client.
type Store struct {
	client *redis.Client
}

// NewStore wraps client. A nil client yields a Store that never hits.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying Redis client, possibly nil.
func (s *Store) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Enabled reports whether a Redis client is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// GetJSON reports (true, nil) when key was found and decoded into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key for ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

// Aside reads key into dest; on a miss it calls fetch, which must fill dest,
// and caches the result. Cache failures never fail the read.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "aside")
	defer span.End()

	if found, err := s.GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}
	if err := fetch(); err != nil {
		return err
	}
	_ = s.SetJSON(ctx, key, dest, ttl)
	return nil
}

// Invalidate deletes keys.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	s.client.Del(ctx, keys...)
}

// PostsListKey returns the key of one cached home page for the current list
// generation.
func (s *Store) PostsListKey(ctx context.Context, page int) string {
	var gen int64
	if s.Enabled() {
		gen, _ = s.client.Get(ctx, postsListGeneration).Int64()
	}
	return fmt.Sprintf(postsListKeyPrefix, gen, page)
}

// InvalidatePostsList retires every cached home page by bumping the list
// generation. Old pages expire on their own TTL.
func (s *Store) InvalidatePostsList(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.client.Incr(ctx, postsListGeneration)
}

// AcquireLease sets key only if absent, for ttl. It reports true when the
// caller now holds the lease, and true without Redis.
func (s *Store) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	return s.client.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLease deletes key if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, key, owner string) {
	if !s.Enabled() {
		return
	}
	if current, err := s.client.Get(ctx, key).Result(); err == nil && current == owner {
		s.client.Del(ctx, key)
	}
}
