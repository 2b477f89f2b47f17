package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

func newDevicesCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audioio.ListDevices(audioio.Backend(backend))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tDEFAULT\tNAME\tID")
			for _, d := range devices {
				kind := "playback"
				if d.Capture {
					kind = "capture"
				}
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, def, d.Name, d.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&backend, "backend", string(audioio.BackendAuto), "Audio backend: auto, malgo, mock")
	return cmd
}
