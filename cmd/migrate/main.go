package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"errors"
	"os"

	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/storage/db"
	"servicedocs-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		fatal(errors.New("DATABASE_URL is required"))
	}
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		fatal(err)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		fatal(err)
	}
	telemetry.Info("migrate.completed", nil)
}

func fatal(err error) {
	telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
	telemetry.Sync()
	os.Exit(1)
}
