// Command worker publishes scheduled posts as a periodic asynq task. Use it
// with PUBLISHER_MODE=asynq so the web process does not tick as well.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quillpost/internal/bootstrap"
	"quillpost/internal/cache"
	"quillpost/internal/config"
	"quillpost/internal/middleware"
	"quillpost/internal/notifications"
	"quillpost/internal/publisher"
	"quillpost/internal/repository"
	"quillpost/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)
	if cfg.RedisURL == "" {
		logger.Error("the worker needs REDIS_URL")
		os.Exit(1)
	}

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to initialize runtime", "err", err)
		os.Exit(1)
	}

	store := cache.NewStore(rdb)
	pub := publisher.New(repository.NewPostRepository(db, store), publisher.Options{
		Interval: cfg.PublishInterval,
		Lease:    store,
		Events:   notifications.NewNotifier(rdb),
		Logger:   logger,
	})

	stopScheduler, err := worker.StartScheduler(cfg.RedisURL, cfg.PublishInterval, logger)
	if err != nil {
		logger.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}
	defer stopScheduler()

	srv, mux, err := worker.NewServer(cfg.RedisURL, logger, pub)
	if err != nil {
		logger.Error("failed to create worker", "err", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "err", err)
		os.Exit(1)
	}
	logger.Info("worker running", "interval", cfg.PublishInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down worker")
	srv.Shutdown()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
