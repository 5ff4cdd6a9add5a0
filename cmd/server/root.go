package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Running it without a subcommand serves traffic.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity-service",
		Short: "Identity and session service",
		Long: `Identity service issues access and refresh tokens for local,
legacy and social sign-ins. Configuration is read from the environment.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
