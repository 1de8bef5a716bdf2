// Package bootstrap wires the shared runtime of the server and worker
// commands.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"quillpost/internal/cache"
	"quillpost/internal/config"
	"quillpost/internal/database"
	"quillpost/internal/models"
	"quillpost/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development database with demo authors.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis. The Redis client is nil
// when REDIS_URL is unset or unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.InitRedis(cfg.RedisURL)

	if opts.SeedDemo {
		if err := seedDemo(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return db, rdb, nil
}

func seedDemo(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || !strings.EqualFold(cfg.Env, "development") {
		return nil
	}
	var users int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}
	sum, err := seed.Seed(db, seed.Options{NumUsers: 5, PostsPerUser: 4, ScheduledPerUser: 1})
	if err != nil {
		return err
	}
	slog.Info("demo data seeded", "users", sum.Users, "password", seed.DefaultPassword,
		"login", seed.DemoUsernames[0]+"@example.com")
	return nil
}
