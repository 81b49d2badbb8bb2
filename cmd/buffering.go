package cmd

import (
	"context"
	"fmt"

	"github.com/babelcloud/gbox/packages/replay/internal/client"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewStartCommand creates the 'start' command
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "start",
		Short:        "Start buffering",
		Long:         `Start a new buffering session on the running replay server. Buffered samples of the previous session are discarded.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewFromConfig()
			if err := c.StartBuffering(commandContext(cmd)); err != nil {
				return errors.Wrap(err, "failed to start buffering")
			}
			fmt.Println(color.GreenString("●"), "Buffering")
			return nil
		},
	}
}

// NewStopCommand creates the 'stop' command
func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "stop",
		Short:        "Stop buffering",
		Long:         `Stop buffering and discard buffered samples. A save in progress finishes first.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewFromConfig()
			if err := c.StopBuffering(commandContext(cmd)); err != nil {
				return errors.Wrap(err, "failed to stop buffering")
			}
			fmt.Println(color.YellowString("■"), "Stopped")
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
