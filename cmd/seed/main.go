// Command seed fills the database with demo authors and posts.
package main

import (
	"flag"
	"log/slog"
	"os"

	"quillpost/internal/config"
	"quillpost/internal/database"
	"quillpost/internal/middleware"
	"quillpost/internal/seed"
)

func main() {
	configPath := flag.String("config", "", "path to the JSON config file")
	numUsers := flag.Int("users", 10, "number of users to create")
	posts := flag.Int("posts", 8, "published posts per user")
	scheduled := flag.Int("scheduled", 1, "scheduled posts per user")
	clean := flag.Bool("clean", true, "remove existing users and posts first")
	dryRun := flag.Bool("dry-run", false, "generate data without writing it")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}

	sum, err := seed.Seed(db, seed.Options{
		NumUsers:         *numUsers,
		PostsPerUser:     *posts,
		ScheduledPerUser: *scheduled,
		ShouldClean:      *clean,
		DryRun:           *dryRun,
	})
	if err != nil {
		slog.Error("seeding failed", "err", err)
		os.Exit(1)
	}

	slog.Info("all test users share one password",
		"password", seed.DefaultPassword, "users", sum.Users, "published", sum.Published, "scheduled", sum.Scheduled)
}
