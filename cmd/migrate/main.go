package main

// Run database migrations:
//   go run ./cmd/migrate up

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"financial-reporter/internal/shared/config"
	"financial-reporter/internal/shared/storage/db"
	"financial-reporter/internal/shared/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the reports database schema",
		SilenceUsage: true,
	}
	for _, command := range []struct{ name, short string }{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the most recent migration"},
		{"status", "Print the status of every migration"},
		{"version", "Print the current schema version"},
	} {
		root.AddCommand(migrationCmd(command.name, command.short))
	}
	return root
}

func migrationCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), name)
		},
	}
}

func run(ctx context.Context, command string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if _, err := telemetry.Init(cfg.Env, cfg.LogLevel); err != nil {
		return err
	}
	defer telemetry.Sync()

	for _, warning := range cfg.Warnings {
		telemetry.Warn("config.invalid_value", map[string]any{"detail": warning})
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolFor(db.ProfileMigrate, cfg.DBPool))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
