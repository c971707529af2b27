package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shepherdctl",
		Short: "Administrative tools: migrations and permission seeding",
	}
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedPermissionsCmd())
	return cmd
}
