// Package publisher promotes scheduled posts to published once their time
// has come.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"quillpost/internal/models"
	"quillpost/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// LeaseKey guards ticks across processes.
const LeaseKey = "quillpost:publisher:lease"

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 60 * time.Second

// ErrTickInProgress is returned by Tick when another tick still holds the
// in-process guard or the cross-process lease.
var ErrTickInProgress = errors.New("publisher tick already in progress")

// PostStore is the persistence the publisher needs.
type PostStore interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Post, error)
	Publish(ctx context.Context, id uint) (bool, error)
}

// Lease is a short exclusive lock shared between processes.
type Lease interface {
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string)
}

// Events receives one call per published post.
type Events interface {
	PostPublished(ctx context.Context, postID, userID uint, at time.Time) error
}

// Options configures a Publisher. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Now      func() time.Time
	Lease    Lease
	Events   Events
	Logger   *slog.Logger
}

// Result summarizes one tick.
type Result struct {
	Due       int
	Published int
}

type Publisher struct {
	posts    PostStore
	lease    Lease
	events   Events
	now      func() time.Time
	interval time.Duration
	owner    string
	logger   *slog.Logger
	running  atomic.Bool
}

func New(posts PostStore, opts Options) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Publisher{
		posts:    posts,
		lease:    opts.Lease,
		events:   opts.Events,
		now:      opts.Now,
		interval: opts.Interval,
		owner:    uuid.NewString(),
		logger:   opts.Logger.With("component", "publisher"),
	}
}

// Interval is the configured tick period.
func (p *Publisher) Interval() time.Duration { return p.interval }

// Tick publishes every post whose scheduled time is at or before now. Each
// post is committed on its own, so a failure leaves earlier posts published
// and a later tick retries the rest. Panics are turned into errors.
func (p *Publisher) Tick(ctx context.Context) (res Result, err error) {
	if !p.running.CompareAndSwap(false, true) {
		observability.PublisherTicks.WithLabelValues("skipped").Inc()
		return res, ErrTickInProgress
	}
	defer p.running.Store(false)

	if p.lease != nil {
		ok, lerr := p.lease.AcquireLease(ctx, LeaseKey, p.owner, p.interval)
		if lerr != nil {
			p.logger.WarnContext(ctx, "publisher lease unavailable, ticking without it", "err", lerr)
		} else if !ok {
			observability.PublisherTicks.WithLabelValues("skipped").Inc()
			return res, ErrTickInProgress
		}
		defer p.lease.ReleaseLease(context.WithoutCancel(ctx), LeaseKey, p.owner)
	}

	start := time.Now()
	ctx, span := observability.GetTraceLayer().TraceJob(ctx, "publish_scheduled")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher tick panic: %v", r)
		}
		observability.PublisherTickDuration.Observe(time.Since(start).Seconds())
		span.AddAttributes(
			attribute.Int("posts.due", res.Due),
			attribute.Int("posts.published", res.Published),
		)
		span.SetError(err)
		if err != nil {
			observability.PublisherTicks.WithLabelValues("error").Inc()
		} else {
			observability.PublisherTicks.WithLabelValues("ok").Inc()
		}
		span.End()
	}()

	now := p.now().UTC()
	due, err := p.posts.ListDue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list due posts: %w", err)
	}
	res.Due = len(due)

	var errs []error
	for _, post := range due {
		published, perr := p.posts.Publish(ctx, post.ID)
		if perr != nil {
			p.logger.ErrorContext(ctx, "failed to publish post", "post_id", post.ID, "err", perr)
			errs = append(errs, fmt.Errorf("publish post %d: %w", post.ID, perr))
			continue
		}
		if !published {
			continue
		}
		res.Published++
		observability.PostsPublished.Inc()
		p.logger.InfoContext(ctx, "post published", "post_id", post.ID, "user_id", post.UserID)
		if p.events != nil {
			if eerr := p.events.PostPublished(ctx, post.ID, post.UserID, now); eerr != nil {
				p.logger.WarnContext(ctx, "failed to emit post_published", "post_id", post.ID, "err", eerr)
			}
		}
	}
	return res, errors.Join(errs...)
}

// Run ticks once immediately and then every interval until ctx is done.
// Tick errors are logged and never stop the loop.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("publisher started", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Publisher) runOnce(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	res, err := p.Tick(tctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		p.logger.Debug("publisher tick skipped, previous tick still running")
	case err != nil:
		p.logger.Error("publisher tick failed", "err", err, "due", res.Due, "published", res.Published)
	case res.Due > 0:
		p.logger.Info("publisher tick done", "due", res.Due, "published", res.Published)
	}
}
