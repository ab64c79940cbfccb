package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [identity]",
		Short: "Remove the stored implementations of one function, or of all functions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := ""
			if len(args) == 1 {
				identity = args[0]
			}
			return c.app.Clear(cmd.Context(), identity)
		},
	}
}
