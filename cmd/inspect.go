package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/avbstream/internal/stream"
)

var inspectFile string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Decode the AVTP frames of a pcap capture",
	Long: `Print one line per AVTP frame in a capture: stream id, sequence number,
AVTP timestamp and CIP fields. For MPEG-TS streams the sub-timestamp and
the PCR, PTS and DTS of the carried packets are shown. Sequence gaps are
reported per stream.

Examples:
  avbstream inspect -r avb.pcap`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(inspectFile)
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		defer f.Close()

		sum, err := stream.Inspect(f, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# packets=%d frames=%d discontinuities=%d decode_errors=%d\n",
			sum.Packets, sum.Frames, sum.Discontinuities, sum.DecodeErrors)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFile, "read", "r", "", "pcap file to decode (required)")
	inspectCmd.MarkFlagRequired("read")
}
