package cmd

import (
	"fmt"

	"github.com/babelcloud/gbox/packages/replay/config"
	"github.com/babelcloud/gbox/packages/replay/internal/util"
	"github.com/babelcloud/gbox/packages/replay/internal/version"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "gbox-replay",
		Short: "Instant replay buffer",
		Long: `gbox-replay keeps the last seconds of captured screen, system audio and microphone in memory
and writes them to a video or audio file on request.`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				config.Set("log.verbose", true)
			}
			util.InitLogger(config.GetVerbose())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				fmt.Println(version.Summary())
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().Bool("version", false, "Print version information and exit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewStopCommand())
	rootCmd.AddCommand(NewSaveCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
