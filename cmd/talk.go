package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/avb/mpegts"
	"firestige.xyz/avbstream/internal/avb/pcm"
	"firestige.xyz/avbstream/internal/config"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/internal/stream"
)

var talkFlags struct {
	input        string
	iface        string
	latency      string
	packageCount int
	sync         bool
	noPTP        bool
	format       string
	rate         int
	channels     int
}

var talkCmd = &cobra.Command{
	Use:   "talk pcm|mpegts",
	Short: "Send a media stream as an AVB talker",
	Long: `Read raw interleaved PCM or a 188-byte MPEG transport stream and send it
as an IEEE 1722 stream. Reading from stdin marks the input as live, which
selects the short automatic latency.

Examples:
  avbstream talk pcm -i music.raw --rate 48000 --channels 2 --format S16LE
  arecord -f S16_LE -r 48000 -c 2 -t raw | avbstream talk pcm --interface eth1
  avbstream talk mpegts -i movie.ts --sync --latency 2ms`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"pcm", "mpegts"},
	RunE:      runTalk,
}

func init() {
	f := talkCmd.Flags()
	f.StringVarP(&talkFlags.input, "input", "i", "-", "input file, - for stdin")
	f.StringVar(&talkFlags.iface, "interface", "", "AVB network interface")
	f.StringVar(&talkFlags.latency, "latency", "", "presentation offset, a duration or auto")
	f.IntVar(&talkFlags.packageCount, "package-count", 0, "max packets coalesced per frame")
	f.BoolVar(&talkFlags.sync, "sync", false, "pace the input to the wall clock")
	f.BoolVar(&talkFlags.noPTP, "no-ptp", false, "stamp from buffer times instead of gPTP")
	f.StringVar(&talkFlags.format, "format", "", "PCM sample format, S16LE or S24LE")
	f.IntVar(&talkFlags.rate, "rate", 0, "PCM sample rate")
	f.IntVar(&talkFlags.channels, "channels", 0, "PCM channel count")
}

// applyTalkFlags overrides the loaded configuration with explicit flags.
func applyTalkFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Network.Interface = talkFlags.iface
	}
	if flags.Changed("latency") {
		l, err := config.ParseLatency(talkFlags.latency)
		if err != nil {
			return err
		}
		cfg.Talker.Latency = l
	}
	if flags.Changed("package-count") {
		cfg.Talker.PackageCount = talkFlags.packageCount
	}
	if flags.Changed("sync") {
		cfg.Talker.Sync = talkFlags.sync
	}
	if flags.Changed("no-ptp") {
		cfg.Talker.UsePTPTime = !talkFlags.noPTP
	}
	if flags.Changed("format") {
		cfg.Talker.PCM.Format = talkFlags.format
	}
	if flags.Changed("rate") {
		cfg.Talker.PCM.Rate = talkFlags.rate
	}
	if flags.Changed("channels") {
		cfg.Talker.PCM.Channels = talkFlags.channels
	}
	return cfg.ValidateAndApplyDefaults()
}

// talkPayload picks the payloader and stamper for a media kind.
func talkPayload(kind string) (avb.Payloader, stream.Stamper, error) {
	switch kind {
	case "pcm":
		width, err := pcm.ParseWidth(cfg.Talker.PCM.Format)
		if err != nil {
			return nil, nil, err
		}
		f := pcm.Format{Rate: cfg.Talker.PCM.Rate, Channels: cfg.Talker.PCM.Channels, Width: width}
		p, err := pcm.NewPayloader(f)
		if err != nil {
			return nil, nil, err
		}
		return p, stream.NewPCMStamper(f), nil
	case "mpegts":
		if cfg.Talker.PackageCount > mpegts.MaxPackageCount {
			return nil, nil, fmt.Errorf("%w: talker.package_count %d exceeds %d ts packets per frame",
				core.ErrConfigInvalid, cfg.Talker.PackageCount, mpegts.MaxPackageCount)
		}
		return mpegts.NewPayloader(), stream.NewPCRStamper(), nil
	}
	return nil, nil, fmt.Errorf("unknown media kind %q (want pcm or mpegts)", kind)
}

// openInput opens path for reading. stdin counts as a live source.
func openInput(path string) (r io.ReadCloser, live bool, err error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open input: %w", err)
	}
	return f, false, nil
}

func runTalk(cmd *cobra.Command, args []string) error {
	if err := applyTalkFlags(cmd); err != nil {
		return err
	}
	p, stamper, err := talkPayload(args[0])
	if err != nil {
		return err
	}
	input, live, err := openInput(talkFlags.input)
	if err != nil {
		return err
	}
	defer input.Close()

	latency := avb.LatencyAuto
	if !cfg.Talker.Latency.IsAuto() {
		latency = cfg.Talker.Latency.ClockTime()
	}
	talker := stream.NewTalker(stream.TalkerConfig{
		Sink: avb.SinkConfig{
			Interface:    cfg.Network.Interface,
			CaptureFile:  cfg.Network.CaptureFile,
			PTPDevice:    cfg.PTP.Device,
			PollTimeout:  cfg.Network.PollTimeout,
			Latency:      latency,
			UsePTPTime:   cfg.Talker.UsePTPTime,
			PackageCount: cfg.Talker.PackageCount,
		},
		ChunkSize: cfg.Talker.ChunkSize,
		Sync:      cfg.Talker.Sync,
		Live:      live,
	}, p, stamper)

	ctx, cancel := signalContext()
	defer cancel()
	stop, err := startMetrics(ctx, talker.Status)
	if err != nil {
		return err
	}
	defer stop()

	log.GetLogger().WithFields(map[string]interface{}{
		"session": talker.ID(),
		"input":   talkFlags.input,
	}).Info("starting talker")
	return talker.Run(ctx, input)
}
