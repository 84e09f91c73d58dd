package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/storage/db"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "docvault maintenance tool",
	Example: `admin migrate up
admin migrate status
admin migrate down
admin seed admin --email admin@document.com
admin seed users --count 20`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd(), seedCmd())
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}

func connect(ctx context.Context) (*sql.DB, config.Config, error) {
	cfg := config.Load()
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultMigrateOptions())
	if err != nil {
		return nil, cfg, err
	}
	return sqlDB, cfg, nil
}
