package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/babelcloud/gbox/packages/replay/internal/client"
	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
	"github.com/babelcloud/gbox/packages/replay/internal/util"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the 'status' command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "status",
		Short:        "Show buffer status",
		Long:         `Check if the replay server is running and show what is buffered per track.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewFromConfig()
			status, err := c.Status(commandContext(cmd))
			if err != nil {
				fmt.Println("❌ Replay server is not running")
				fmt.Println("   Use 'gbox-replay serve' to start the server")
				return nil
			}
			printStatus(os.Stdout, c.BaseURL(), status)
			return nil
		},
	}
}

func printStatus(w io.Writer, baseURL string, status *handlers.StatusResponse) {
	fmt.Fprintf(w, "✅ Replay server is running at %s (version %s, up %s)\n", baseURL, status.Version, status.Uptime)

	state := color.YellowString("stopped")
	if status.Buffering {
		state = color.GreenString("buffering")
	}
	if status.SaveInProgress {
		state += ", " + color.CyanString("saving")
	}
	fmt.Fprintf(w, "   State: %s, window %gs\n\n", state, status.WindowSeconds)

	rows := make([]map[string]string, 0, len(status.Tracks))
	for _, tr := range status.Tracks {
		codec := tr.Codec
		if codec == "" {
			codec = "-"
		}
		rows = append(rows, map[string]string{
			"kind":     tr.Kind,
			"codec":    codec,
			"samples":  strconv.Itoa(tr.Samples),
			"duration": fmt.Sprintf("%.1fs", tr.DurationSeconds),
			"ingested": strconv.FormatUint(tr.Ingested, 10),
		})
	}
	util.RenderTable(w, []util.TableColumn{
		{Header: "TRACK", Key: "kind"},
		{Header: "CODEC", Key: "codec"},
		{Header: "SAMPLES", Key: "samples"},
		{Header: "BUFFERED", Key: "duration"},
		{Header: "INGESTED", Key: "ingested"},
	}, rows)

	if last := status.LastSave; last != nil {
		fmt.Fprintf(w, "\nLast save (%s): %s", last.At.Format("15:04:05"), last.Status)
		if last.Path != "" {
			fmt.Fprintf(w, " %s", last.Path)
		}
		if last.Reason != "" {
			fmt.Fprintf(w, " (%s)", last.Reason)
		}
		fmt.Fprintln(w)
	}
}
