// Command server runs the Quillpost web application.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quillpost/internal/config"
	"quillpost/internal/middleware"
	"quillpost/internal/observability"
	"quillpost/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the JSON config file (default $QUILLPOST_CONFIG or ./config.json)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "quillpost",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TraceSampleRate,
	})
	if err != nil {
		slog.Error("failed to initialize tracing", "err", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, srv.Start, func(ctx context.Context) error {
		slog.Info("shutting down server")
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		return shutdownTracing(ctx)
	}, 10*time.Second)
	if err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// run serves until ctx is done, then shuts down. Start returns as soon as the
// listener closes, so run waits for shutdown to finish before returning.
func run(ctx context.Context, start func() error, shutdown func(context.Context) error, grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if err := start(); err != nil {
		return err
	}
	<-done
	return nil
}
