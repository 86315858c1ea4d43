package main

import (
	"fmt"
	"os"

	"github.com/effectus/irkit/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres document store schema",
		Long: `Run goose migrations for the ir_documents table.

Examples:
  # Apply all pending migrations
  irc migrate up --dsn postgres://localhost/irkit

  # Show migration status
  irc migrate status`,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database connection string (defaults to $IRKIT_DSN)")

	for _, sub := range []struct {
		use   string
		short string
	}{
		{"up", "Apply pending migrations"},
		{"down", "Roll back the last migration"},
		{"status", "Show migration status"},
		{"version", "Print the current schema version"},
		{"redo", "Roll back and reapply the last migration"},
		{"reset", "Roll back all migrations"},
	} {
		command := sub.use
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				target := dsn
				if target == "" {
					target = os.Getenv("IRKIT_DSN")
				}
				if target == "" {
					return fmt.Errorf("--dsn or IRKIT_DSN is required")
				}
				return store.Migrate(cmd.Context(), target, command)
			},
		})
	}
	return cmd
}
