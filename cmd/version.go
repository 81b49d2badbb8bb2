package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/babelcloud/gbox/packages/replay/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the 'version' command
func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.ClientInfo()
			if outputFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Println("Client:")
			fmt.Printf(" Version:           %s\n", info["Version"])
			fmt.Printf(" Go version:        %s\n", info["GoVersion"])
			fmt.Printf(" Git commit:        %s\n", info["GitCommit"])
			fmt.Printf(" Built:             %s\n", info["FormattedTime"])
			fmt.Printf(" OS/Arch:           %s/%s\n", info["OS"], info["Arch"])
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text|json)")
	return cmd
}
