package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/prperemyshlev/identity-service/internal/config"
	"github.com/prperemyshlev/identity-service/pkg/database"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE:  runMigrateDown,
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE:  runMigrateVersion,
	})

	return cmd
}

func databaseURL(cmd *cobra.Command) (string, error) {
	pg, err := config.LoadPostgres(cmd.Context())
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return pg.URL(), nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}

	cmd.Println("Running migrations...")
	if err := database.RunMigrations(url); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	if steps <= 0 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be positive")
	}

	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}

	cmd.Printf("Rolling back %d migration(s)...\n", steps)
	if err := database.RollbackMigrations(url, steps); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
	}

	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}

	version, dirty, err := database.MigrationVersion(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
	}

	if dirty {
		cmd.Printf("version %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("version %d\n", version)
	return nil
}
