// Package notifications publishes blog events over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"
)

// PostsChannel carries post lifecycle events.
const PostsChannel = "quillpost:events:posts"

// Event types.
const (
	EventPostPublished = "post_published"
)

// PostEvent is the payload published on PostsChannel.
type PostEvent struct {
	Type   string    `json:"type"`
	PostID uint      `json:"post_id"`
	UserID uint      `json:"user_id"`
	At     time.Time `json:"at"`
}

// Notifier provides helpers to publish events into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every call into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishPostEvent sends ev to PostsChannel.
func (n *Notifier) PublishPostEvent(ctx context.Context, ev PostEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, PostsChannel, string(payload)).Err()
}

// PostPublished is shorthand for a post_published event.
func (n *Notifier) PostPublished(ctx context.Context, postID, userID uint, at time.Time) error {
	return n.PublishPostEvent(ctx, PostEvent{
		Type:   EventPostPublished,
		PostID: postID,
		UserID: userID,
		At:     at.UTC(),
	})
}

// StartPostSubscriber subscribes to PostsChannel and calls onEvent for each
// decodable message until ctx is done.
func (n *Notifier) StartPostSubscriber(ctx context.Context, onEvent func(PostEvent)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, PostsChannel)
	// Wait for the subscription so events published right after return are seen.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", PostsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev PostEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("dropping malformed post event", "err", err)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							slog.Error("panic in post subscriber", "panic", r, "stack", string(debug.Stack()))
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
