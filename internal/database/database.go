// Package database handles database connections and schema management.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quillpost/internal/config"
	"quillpost/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// CustomGormLogger integrates GORM with slog
type CustomGormLogger struct {
	logger *slog.Logger
	Config logger.Config
}

// NewGormLogger returns the slog-backed GORM logger with a 200ms slow-query threshold.
func NewGormLogger(l *slog.Logger) *CustomGormLogger {
	return &CustomGormLogger{
		logger: l,
		Config: logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	}
}

// LogMode sets the logging level and returns a new interface instance.
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newlogger := *l
	newlogger.Config.LogLevel = level
	return &newlogger
}

// Info logs an informational message with context.
func (l *CustomGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Warn logs a warning message with context.
func (l *CustomGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *CustomGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace logs trace-level information including SQL queries and execution time.
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Config.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.Config.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "GORM query error",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > l.Config.SlowThreshold && l.Config.SlowThreshold != 0 && l.Config.LogLevel >= logger.Warn:
		l.logger.WarnContext(ctx, "GORM slow query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.Config.LogLevel >= logger.Info:
		l.logger.InfoContext(ctx, "GORM query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

// Dialector picks the GORM driver for a DATABASE_URL. postgres:// URLs and
// key=value DSNs go to Postgres; sqlite: URLs, file: DSNs, :memory: and
// *.db paths go to SQLite.
func Dialector(databaseURL string) (gorm.Dialector, string, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return nil, "", errors.New("empty database url")
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"), strings.HasPrefix(u, "host="):
		return postgres.Open(u), DriverPostgres, nil
	case strings.HasPrefix(u, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(u, "sqlite://")), DriverSQLite, nil
	case strings.HasPrefix(u, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(u, "sqlite:")), DriverSQLite, nil
	case strings.HasPrefix(u, "file:"), u == ":memory:", strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"):
		return sqlite.Open(u), DriverSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported database url %q", u)
	}
}

// Open connects without touching the schema.
func Open(cfg *config.Config) (*gorm.DB, string, error) {
	dialector, driver, err := Dialector(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(middleware.Logger),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, "", fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	if err := configurePool(db, cfg, driver); err != nil {
		return nil, "", err
	}

	middleware.Logger.Info("Database connected successfully", slog.String("driver", driver))
	return db, driver, nil
}

// Connect opens the database and brings its schema up to date.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, driver, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := ApplySchema(context.Background(), db, driver, cfg.Env); err != nil {
		return nil, err
	}
	return db, nil
}

func configurePool(db *gorm.DB, cfg *config.Config, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if driver == DriverSQLite {
		// one connection keeps :memory: databases and write locks consistent
		sqlDB.SetMaxOpenConns(1)
		return nil
	}
	maxOpen, maxIdle := cfg.DBMaxOpenConns, cfg.DBMaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
