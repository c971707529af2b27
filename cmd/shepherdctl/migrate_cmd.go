package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shepherdhq/shepherd/migrations"
	"github.com/shepherdhq/shepherd/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrations.Up(cmd.Context(), configuration.Use().Database.Opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrations.Down(cmd.Context(), configuration.Use().Database.Opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := migrations.Status(cmd.Context(), configuration.Use().Database.Opts)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	})

	return cmd
}
