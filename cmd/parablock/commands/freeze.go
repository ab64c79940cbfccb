package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newFreezeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "freeze <identity>",
		Short:   "Pin a function to its latest accepted implementation",
		Example: "  parablock freeze example.com/demo.Greeting",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Freeze(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) newUnfreezeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfreeze <identity>",
		Short: "Release the pin of a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Unfreeze(cmd.Context(), args[0])
		},
	}
}
