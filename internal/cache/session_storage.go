package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStorage implements fiber.Storage on Redis for the session middleware.
type SessionStorage struct {
	client  *redis.Client
	timeout time.Duration
}

// NewSessionStorage returns nil when client is nil so the session middleware
// falls back to its in-memory storage.
func NewSessionStorage(client *redis.Client) *SessionStorage {
	if client == nil {
		return nil
	}
	return &SessionStorage{client: client, timeout: 2 * time.Second}
}

func (s *SessionStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns nil, nil for unknown keys as fiber.Storage requires.
func (s *SessionStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	val, err := s.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *SessionStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, sessionKeyPrefix+key, val, exp).Err()
}

func (s *SessionStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, sessionKeyPrefix+key).Err()
}

// Reset removes every stored session.
func (s *SessionStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *SessionStorage) Close() error {
	return nil
}
