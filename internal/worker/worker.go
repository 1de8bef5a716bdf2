// Package worker runs the scheduled-post publisher as a periodic asynq task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quillpost/internal/publisher"

	"github.com/hibiken/asynq"
)

// TaskPublishScheduled is the periodic task that runs one publisher tick.
const TaskPublishScheduled = "posts:publish_scheduled"

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// NewPublishTask builds the periodic task. It never retries: the next
// period is the retry.
func NewPublishTask(interval time.Duration) *asynq.Task {
	return asynq.NewTask(
		TaskPublishScheduled,
		nil,
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
}

// Schedule is the cron spec for interval.
func Schedule(interval time.Duration) string {
	return "@every " + interval.String()
}

// HandlePublishScheduled runs one tick. A tick that finds another one in
// progress is not an error.
func HandlePublishScheduled(logger *slog.Logger, p *publisher.Publisher) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		res, err := p.Tick(ctx)
		if errors.Is(err, publisher.ErrTickInProgress) {
			logger.Debug("publish tick skipped, another tick holds the lease")
			return nil
		}
		if err != nil {
			return fmt.Errorf("publish scheduled posts: %w", err)
		}
		if res.Due > 0 {
			logger.Info("publish tick done", "due", res.Due, "published", res.Published)
		}
		return nil
	}
}

// NewServer builds the asynq server and mux that process publish ticks.
func NewServer(redisURL string, logger *slog.Logger, p *publisher.Publisher) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURI(redisURL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     1,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPublishScheduled, HandlePublishScheduled(logger, p))
	return srv, mux, nil
}

// StartScheduler registers the periodic publish task and starts the
// scheduler. The returned function stops it.
func StartScheduler(redisURL string, interval time.Duration, logger *slog.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(redisURI(redisURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entryID, err := scheduler.Register(Schedule(interval), NewPublishTask(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to register publish schedule: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started", "schedule", Schedule(interval), "entry_id", entryID)
	return func() { scheduler.Shutdown() }, nil
}

// redisURI accepts the bare host:port form REDIS_URL also allows.
func redisURI(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "redis://" + addr
}

func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
		)
	}
}
