package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/avbstream/internal/avb/pcm"
	"firestige.xyz/avbstream/internal/config"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/pkg/wire"
)

func useDefaults(t *testing.T) {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	cfg = c
}

func TestTalkPayload(t *testing.T) {
	useDefaults(t)
	cfg.Talker.PCM.Format = "S24LE"
	cfg.Talker.PCM.Rate = 96000
	cfg.Talker.PCM.Channels = 8

	p, s, err := talkPayload("pcm")
	require.NoError(t, err)
	assert.Equal(t, pcm.Format{Rate: 96000, Channels: 8, Width: 24}, p.(*pcm.Payloader).Format())
	assert.Equal(t, 24, s.Align())

	p, s, err = talkPayload("mpegts")
	require.NoError(t, err)
	assert.Equal(t, "mpegts", p.Name())
	assert.Equal(t, 188, s.Align())

	cfg.Talker.PackageCount = 8
	_, _, err = talkPayload("mpegts")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	cfg.Talker.PCM.Channels = 16
	_, _, err = talkPayload("pcm")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, _, err = talkPayload("h264")
	assert.Error(t, err)
}

func TestListenDepayloader(t *testing.T) {
	d, err := listenDepayloader("pcm")
	require.NoError(t, err)
	assert.Equal(t, "pcm", d.Name())
	d, err = listenDepayloader("mpegts")
	require.NoError(t, err)
	assert.Equal(t, "mpegts", d.Name())
	_, err = listenDepayloader("dv")
	assert.Error(t, err)
}

func TestApplyTalkFlags(t *testing.T) {
	useDefaults(t)
	require.NoError(t, talkCmd.Flags().Parse([]string{
		"--interface", "eth7", "--latency", "250ms", "--package-count", "16",
		"--no-ptp", "--sync", "--rate", "44100",
	}))

	require.NoError(t, applyTalkFlags(talkCmd))
	assert.Equal(t, "eth7", cfg.Network.Interface)
	assert.Equal(t, config.Latency(250*time.Millisecond), cfg.Talker.Latency)
	assert.Equal(t, 16, cfg.Talker.PackageCount)
	assert.False(t, cfg.Talker.UsePTPTime)
	assert.True(t, cfg.Talker.Sync)
	assert.Equal(t, 44100, cfg.Talker.PCM.Rate)
	assert.Equal(t, 2, cfg.Talker.PCM.Channels)
}

func TestOpenInput(t *testing.T) {
	_, live, err := openInput("-")
	require.NoError(t, err)
	assert.True(t, live)

	path := filepath.Join(t.TempDir(), "in.raw")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0644))
	r, live, err := openInput(path)
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, live)

	_, _, err = openInput(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	h := new(wire.Header)
	wire.InitHeader(h)
	h.CIP().SetFMT(wire.FMTAudio)
	h.AVTPDU().SetStreamDataLength(wire.CIPHeaderLen + 8)
	frame := append(h[:], make([]byte, 8)...)

	path := filepath.Join(t.TempDir(), "avb.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(frame), Length: len(frame)}, frame))
	require.NoError(t, f.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", "-r", path})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })
	require.NoError(t, Execute())

	assert.Contains(t, out.String(), "seq=0 sdl=16")
	assert.Contains(t, out.String(), "# packets=1 frames=1 discontinuities=0 decode_errors=0")
}
