// Command migrate runs schema operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"quillpost/internal/config"
	"quillpost/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: migrate [-config path] <up|auto|status|down> [version]")
}

func run() error {
	configPath := flag.String("config", "", "path to the JSON config file")
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, driver, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if driver != database.DriverPostgres {
			return fmt.Errorf("sql migrations target postgres; use \"auto\" for %s", driver)
		}
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		log.Println("sql migrations applied")
	case "auto":
		if err := database.ApplySchema(ctx, db, driver, cfg.Env); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
		log.Println("schema applied")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, driver, cfg.Env)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("driver=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d",
			status.Driver, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
			len(status.AppliedVersions), len(status.PendingMigrations))
		for _, m := range status.PendingMigrations {
			log.Printf("pending: %s", m.String())
		}
	case "down":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: migrate down <version>")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %d", version)
	default:
		return usage()
	}

	return nil
}
