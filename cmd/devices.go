package cmd

import (
	"fmt"
	"io"

	"github.com/gregriff/lanmic/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture and playback devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		capture, playback, err := audio.ListDevices()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printDevices(out, "Capture", capture)
		fmt.Fprintln(out)
		printDevices(out, "Playback", playback)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func printDevices(out io.Writer, title string, devices []audio.Device) {
	fmt.Fprintf(out, "%s devices:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, d.Name)
	}
}
