package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quillpost/internal/middleware"

	"gorm.io/gorm"
)

// SchemaStatus summarizes what ApplySchema would do.
type SchemaStatus struct {
	Driver             string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

func isProdLikeEnv(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e == "production" || e == "prod" || e == "staging" || e == "stage"
}

// schemaPolicy: Postgres always runs the SQL migrations and adds AutoMigrate
// outside production; SQLite only uses AutoMigrate.
func schemaPolicy(driver, env string) (runSQL bool, runAuto bool) {
	if driver == DriverPostgres {
		return true, !isProdLikeEnv(env)
	}
	return false, true
}

// ApplySchema brings the schema up to date for the given driver.
func ApplySchema(ctx context.Context, db *gorm.DB, driver, env string) error {
	runSQL, runAuto := schemaPolicy(driver, env)

	if runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if runAuto {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("driver", driver), slog.String("env", env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports applied and pending SQL migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, driver, env string) (*SchemaStatus, error) {
	runSQL, runAuto := schemaPolicy(driver, env)
	status := &SchemaStatus{
		Driver:             driver,
		Environment:        env,
		WillRunSQL:         runSQL,
		WillRunAutoMigrate: runAuto,
	}
	if !runSQL {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	for _, m := range GetMigrations() {
		if !done[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}
	return status, nil
}
