package cmd

import (
	"github.com/spf13/cobra"
)

// newMigrateCmd creates the 'migrate' subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the meeting record table and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App) error {
				return a.Migrate(cmd.Context())
			})
		},
	}
}
