package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the orders, subscriptions and users tables if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := pgrepo.Migrate(cmd.Context(), e.components.Postgres); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
