package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/users"
)

const samplePassword = "Password@123"

func seedCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts",
	}
	command.AddCommand(seedAdminCmd(), seedUsersCmd())
	return command
}

func seedAdminCmd() *cobra.Command {
	var email, password string
	command := &cobra.Command{
		Use:   "admin",
		Short: "Create or promote the admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, cfg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := db.RunMigrations(ctx, sqlDB); err != nil {
				return err
			}
			if email == "" {
				email = cfg.SeedAdminEmail
			}
			if password == "" {
				password = cfg.SeedAdminPassword
			}
			user, err := users.NewService(&users.PGRepo{DB: sqlDB}).EnsureAdmin(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin ready: %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	command.Flags().StringVar(&email, "email", "", "admin email (default SEED_ADMIN_EMAIL)")
	command.Flags().StringVar(&password, "password", "", "admin password (default SEED_ADMIN_PASSWORD)")
	return command
}

func seedUsersCmd() *cobra.Command {
	var count int
	command := &cobra.Command{
		Use:   "users",
		Short: "Create sample editors and viewers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := db.RunMigrations(ctx, sqlDB); err != nil {
				return err
			}
			created, err := seedUsers(ctx, users.NewService(&users.PGRepo{DB: sqlDB}), count, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d users\n", created)
			return nil
		},
	}
	command.Flags().IntVar(&count, "count", 10, "number of users to create")
	return command
}

// seedUsers creates count sample accounts. Every third user is an editor,
// and every other editor holds the ingestion entitlement. Existing emails
// are skipped.
func seedUsers(ctx context.Context, svc *users.Service, count int, out io.Writer) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("count must not be negative")
	}
	created := 0
	for i := 1; i <= count; i++ {
		role := access.RoleViewer
		canTrigger := false
		if i%3 == 0 {
			role = access.RoleEditor
			canTrigger = (i/3)%2 == 1
		}
		in := users.RegisterInput{
			Username: fmt.Sprintf("user%03d", i),
			Email:    fmt.Sprintf("user%03d@document.com", i),
			Password: samplePassword,
		}
		if _, err := svc.CreateWithRole(ctx, in, role, canTrigger); err != nil {
			if errors.Is(err, users.ErrEmailTaken) {
				fmt.Fprintf(out, "skip %s: already exists\n", in.Email)
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
