package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/heapdb/src/app"
	"github.com/Blackdeer1524/heapdb/src/db"
)

type Options struct {
	ConfigPath string
}

type RootCommand struct {
	*cobra.Command
	Options Options
}

func Init(name string) *RootCommand {
	cmd := &RootCommand{
		Command: &cobra.Command{
			Use:           name,
			Short:         "Page based heap storage with strict two-phase locking",
			SilenceUsage:  true,
			SilenceErrors: true,
		},
	}
	cmd.initFlags()

	return cmd
}

// WithDatabase wraps an action into a cobra handler that opens the configured
// database for the duration of the action.
func (c *RootCommand) WithDatabase(
	action func(ctx context.Context, cmd *cobra.Command, args []string, d *db.Database) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context(), &app.DatabaseEntrypoint{
			ConfigPath: c.Options.ConfigPath,
			Action: func(ctx context.Context, d *db.Database) error {
				return action(ctx, cmd, args, d)
			},
		})
	}
}

func (c *RootCommand) Execute(ctx context.Context) error {
	return c.ExecuteContext(ctx)
}

func (c *RootCommand) MustExecute(ctx context.Context) {
	if err := c.Execute(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "heapdb failed: %v\n", err)
		os.Exit(1)
	}
}
