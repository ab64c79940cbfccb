package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newSandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "sandbox",
		Short:  "Run one test case from stdin (internal use)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.ServeSandbox(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
