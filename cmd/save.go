package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/babelcloud/gbox/packages/replay/internal/client"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/session"
	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewSaveCommand creates the 'save' command
func NewSaveCommand() *cobra.Command {
	var (
		duration float64
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:          "save",
		Short:        "Save the buffered replay to a file",
		Long:         `Write the last seconds of the buffer to a file. Buffering stops after every save attempt.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration < 0 {
				return errors.Errorf("duration must not be negative: %v", duration)
			}
			if !cmd.Flags().Changed("quiet") {
				quiet = !term.IsTerminal(int(os.Stdout.Fd()))
			}
			c := client.NewFromConfig()
			result, err := c.Save(commandContext(cmd), duration)
			if err != nil {
				return errors.Wrap(err, "failed to save replay")
			}
			return printSaveResult(os.Stdout, result, quiet)
		},
		Example: `  # Save the whole buffer window
  gbox-replay save

  # Save the last 10 seconds
  gbox-replay save -d 10

  # Print only the file path (the default when piped)
  gbox-replay save -q

  # Open the saved replay
  open "$(gbox-replay save)"`,
	}

	flags := cmd.Flags()
	flags.Float64VarP(&duration, "duration", "d", 0, "Seconds to save (default: the whole window)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Only print the saved file path")

	return cmd
}

func printSaveResult(w io.Writer, result *handlers.SaveResponse, quiet bool) error {
	switch result.Status {
	case session.StatusCompleted:
		if quiet {
			fmt.Fprintln(w, result.Path)
			return nil
		}
		fmt.Fprintf(w, "%s Saved %s\n", color.GreenString("✔"), result.Path)
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "%s %s\n", color.YellowString("!"), warning)
		}
		return nil
	case session.StatusRejected:
		return errors.Errorf("save rejected: %s", result.Reason)
	default:
		return errors.Errorf("save failed: %s", result.Reason)
	}
}
