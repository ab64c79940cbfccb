// Package commands implements the CLI commands for parablock.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go.trai.ch/parablock/internal/app"
	"go.trai.ch/parablock/internal/build"
)

// CLI represents the command line interface for parablock.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Watch(ctx context.Context) error
	Generate(ctx context.Context, opts app.GenerateOptions) error
	Verify(ctx context.Context) error
	Freeze(ctx context.Context, identity string) error
	Unfreeze(ctx context.Context, identity string) error
	Clear(ctx context.Context, identity string) error
	Show(ctx context.Context, identity string) error
	ServeSandbox(ctx context.Context, r io.Reader, w io.Writer) error
	SetLogFormat(json, verbose bool)
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "parablock",
		Short:         "Generate Go implementations from declarations and their tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().Bool("json", false, "Write logs and command results as JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Include debug messages in the log")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		json, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		c.app.SetLogFormat(json, verbose)
	}

	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newGenerateCmd())
	rootCmd.AddCommand(c.newVerifyCmd())
	rootCmd.AddCommand(c.newFreezeCmd())
	rootCmd.AddCommand(c.newUnfreezeCmd())
	rootCmd.AddCommand(c.newClearCmd())
	rootCmd.AddCommand(c.newShowCmd())
	rootCmd.AddCommand(c.newSandboxCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// SetInput sets the input stream for the root command. Used for testing.
func (c *CLI) SetInput(in io.Reader) {
	c.rootCmd.SetIn(in)
}
