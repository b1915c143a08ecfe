package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/avb/mpegts"
	"firestige.xyz/avbstream/internal/avb/pcm"
	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/internal/stream"
	"firestige.xyz/avbstream/internal/transport"
)

var listenFlags struct {
	output  string
	iface   string
	replay  string
	timeout time.Duration
}

var listenCmd = &cobra.Command{
	Use:   "listen pcm|mpegts",
	Short: "Receive an AVB stream as a listener",
	Long: `Receive an IEEE 1722 stream and write the unpacked media to a file or
stdout. With --replay the frames are read from a pcap capture instead of
the network.

Examples:
  avbstream listen pcm -o out.raw --interface eth1
  avbstream listen mpegts --timeout 5s | ffplay -
  avbstream listen pcm --replay avb.pcap -o out.raw`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"pcm", "mpegts"},
	RunE:      runListen,
}

func init() {
	f := listenCmd.Flags()
	f.StringVarP(&listenFlags.output, "output", "o", "-", "output file, - for stdout")
	f.StringVar(&listenFlags.iface, "interface", "", "AVB network interface")
	f.StringVar(&listenFlags.replay, "replay", "", "read frames from a pcap file")
	f.DurationVar(&listenFlags.timeout, "timeout", 0, "report missing traffic after this long, 0 to never")
}

func listenDepayloader(kind string) (avb.Depayloader, error) {
	switch kind {
	case "pcm":
		return pcm.NewDepayloader(), nil
	case "mpegts":
		return mpegts.NewDepayloader(), nil
	}
	return nil, fmt.Errorf("unknown media kind %q (want pcm or mpegts)", kind)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// pipelineClock prefers gPTP time and falls back to the system clock.
func pipelineClock() (clock.Clock, func()) {
	ptp, err := clock.OpenPTP(clock.PTPConfig{Interface: cfg.Network.Interface, Device: cfg.PTP.Device})
	if err != nil {
		log.GetLogger().WithError(err).Warn("ptp clock unavailable, using system clock")
		return clock.SystemClock{}, func() {}
	}
	return clock.Fallback(ptp, clock.SystemClock{}), func() { ptp.Close() }
}

func runListen(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Network.Interface = listenFlags.iface
	}
	if flags.Changed("timeout") {
		cfg.Listener.Timeout = listenFlags.timeout
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return err
	}

	d, err := listenDepayloader(args[0])
	if err != nil {
		return err
	}
	out, err := openOutput(listenFlags.output)
	if err != nil {
		return err
	}
	defer out.Close()

	var opts []avb.SourceOption
	var clk clock.Clock = clock.SystemClock{}
	if listenFlags.replay != "" {
		path := listenFlags.replay
		opts = append(opts, avb.WithSourceDialer(func(transport.Config) (transport.Conn, error) {
			return transport.OpenPcap(path)
		}))
	} else {
		var release func()
		clk, release = pipelineClock()
		defer release()
	}

	listener := stream.NewListener(stream.ListenerConfig{
		Source: avb.SourceConfig{
			Interface:   cfg.Network.Interface,
			CaptureFile: cfg.Network.CaptureFile,
			PollTimeout: cfg.Network.PollTimeout,
			BufferSize:  cfg.Listener.BufferSize,
			Timeout:     cfg.Listener.Timeout,
		},
		Clock: clk,
	}, d, out, opts...)

	ctx, cancel := signalContext()
	defer cancel()
	stop, err := startMetrics(ctx, listener.Status)
	if err != nil {
		return err
	}
	defer stop()

	log.GetLogger().WithFields(map[string]interface{}{
		"session": listener.ID(),
		"output":  listenFlags.output,
		"replay":  listenFlags.replay,
	}).Info("starting listener")
	return listener.Run(ctx)
}
