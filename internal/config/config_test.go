package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/avbstream/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "failed to write test config")
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Talker.Latency.IsAuto())
	assert.True(t, cfg.Talker.UsePTPTime)
	assert.Equal(t, 0, cfg.Talker.PackageCount)
	assert.Equal(t, "S16LE", cfg.Talker.PCM.Format)
	assert.Equal(t, 48000, cfg.Talker.PCM.Rate)
	assert.Equal(t, 2, cfg.Talker.PCM.Channels)
	assert.Equal(t, 4096000, cfg.Listener.BufferSize)
	assert.Equal(t, time.Duration(0), cfg.Listener.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Network.PollTimeout)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
avbstream:
  log:
    level: debug
  network:
    interface: eth1
    capture_file: /tmp/avb.pcap
  ptp:
    device: /dev/ptp1
  talker:
    latency: 250ms
    use_ptp_time: false
    package_count: 64
    pcm:
      format: S24LE
      rate: 96000
      channels: 8
  listener:
    buffer_size: 1048576
    timeout: 2s
  metrics:
    enabled: true
    listen: 127.0.0.1:9100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "eth1", cfg.Network.Interface)
	assert.Equal(t, "/tmp/avb.pcap", cfg.Network.CaptureFile)
	assert.Equal(t, "/dev/ptp1", cfg.PTP.Device)
	assert.Equal(t, Latency(250*time.Millisecond), cfg.Talker.Latency)
	assert.Equal(t, 250*core.Millisecond, cfg.Talker.Latency.ClockTime())
	assert.False(t, cfg.Talker.UsePTPTime)
	assert.Equal(t, 64, cfg.Talker.PackageCount)
	assert.Equal(t, "S24LE", cfg.Talker.PCM.Format)
	assert.Equal(t, 96000, cfg.Talker.PCM.Rate)
	assert.Equal(t, 8, cfg.Talker.PCM.Channels)
	assert.Equal(t, 1048576, cfg.Listener.BufferSize)
	assert.Equal(t, 2*time.Second, cfg.Listener.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AVBSTREAM_NETWORK_INTERFACE", "eth9")
	t.Setenv("AVBSTREAM_TALKER_LATENCY", "auto")

	path := writeConfig(t, `
avbstream:
  talker:
    latency: 1s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eth9", cfg.Network.Interface)
	assert.True(t, cfg.Talker.Latency.IsAuto())
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"log level": `
avbstream:
  log:
    level: loud
`,
		"pcm format": `
avbstream:
  talker:
    pcm:
      format: F32LE
`,
		"latency": `
avbstream:
  talker:
    latency: soon
`,
		"pcm channels": `
avbstream:
  talker:
    pcm:
      channels: 16
`,
		"buffer size": `
avbstream:
  listener:
    buffer_size: 0
`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestParseLatency(t *testing.T) {
	l, err := ParseLatency("auto")
	require.NoError(t, err)
	assert.True(t, l.IsAuto())

	l, err = ParseLatency("-1")
	require.NoError(t, err)
	assert.True(t, l.IsAuto())

	l, err = ParseLatency("1.5s")
	require.NoError(t, err)
	assert.Equal(t, Latency(1500*time.Millisecond), l)

	_, err = ParseLatency("nope")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestConfigYAMLOutput(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "latency: auto")
	assert.Contains(t, string(out), "buffer_size: 4096000")
}
