package commands

import (
	"github.com/spf13/cobra"

	"go.trai.ch/parablock/internal/app"
)

func (c *CLI) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate missing implementations once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			only, _ := cmd.Flags().GetStringSlice("only")

			return c.app.Generate(cmd.Context(), app.GenerateOptions{
				Force: force,
				Only:  only,
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Regenerate even when an implementation is stored or pinned")
	cmd.Flags().StringSlice("only", nil, "Restrict generation to these function names or identities")
	return cmd
}
