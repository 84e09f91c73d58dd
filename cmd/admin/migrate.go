package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"docvault-backend/internal/shared/storage/db"
)

func migrateCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	command.AddCommand(
		migrateStep("up", "Apply all pending migrations", db.RunMigrations),
		migrateStep("down", "Roll back the most recent migration", db.RollbackMigration),
		migrateStep("status", "Print the state of every migration", db.MigrationStatus),
	)
	return command
}

func migrateStep(use, short string, run func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return run(ctx, sqlDB)
		},
	}
}
