// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
)

// Config represents the top-level configuration.
// Maps to the `avbstream:` root key in YAML.
type Config struct {
	Log      log.LoggerConfig `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Network  NetworkConfig    `mapstructure:"network" yaml:"network"`
	PTP      PTPConfig        `mapstructure:"ptp" yaml:"ptp"`
	Talker   TalkerConfig     `mapstructure:"talker" yaml:"talker"`
	Listener ListenerConfig   `mapstructure:"listener" yaml:"listener"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Network ───

// NetworkConfig selects the AVB interface.
type NetworkConfig struct {
	Interface   string        `mapstructure:"interface" yaml:"interface"`       // Empty = first up, non-loopback interface
	CaptureFile string        `mapstructure:"capture_file" yaml:"capture_file"` // Optional pcap copy of every frame
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// PTPConfig selects the presentation time source.
type PTPConfig struct {
	Device string `mapstructure:"device" yaml:"device"` // Empty = gPTP ioctl on the AVB interface, else /dev/ptpN
}

// ─── Talker ───

// TalkerConfig holds sink engine properties.
type TalkerConfig struct {
	Latency      Latency   `mapstructure:"latency" yaml:"latency"`
	UsePTPTime   bool      `mapstructure:"use_ptp_time" yaml:"use_ptp_time"`
	PackageCount int       `mapstructure:"package_count" yaml:"package_count"` // 0 = format default
	ChunkSize    int       `mapstructure:"chunk_size" yaml:"chunk_size"`
	Sync         bool      `mapstructure:"sync" yaml:"sync"`
	PCM          PCMConfig `mapstructure:"pcm" yaml:"pcm"`
}

// PCMConfig describes raw interleaved input.
type PCMConfig struct {
	Format   string `mapstructure:"format" yaml:"format"` // S16LE | S24LE
	Rate     int    `mapstructure:"rate" yaml:"rate"`
	Channels int    `mapstructure:"channels" yaml:"channels"`
}

// ─── Listener ───

// ListenerConfig holds source engine properties.
type ListenerConfig struct {
	BufferSize int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 = wait forever
}

// Latency is the talker presentation offset. LatencyAuto defers the choice
// to the host: short for live input, long otherwise.
type Latency time.Duration

const LatencyAuto Latency = -1

// ClockTime converts a fixed latency. Callers check IsAuto first.
func (l Latency) ClockTime() core.ClockTime {
	return core.ClockTimeFromDuration(time.Duration(l))
}

func (l Latency) IsAuto() bool {
	return l < 0
}

func (l Latency) String() string {
	if l.IsAuto() {
		return "auto"
	}
	return time.Duration(l).String()
}

func (l Latency) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// ParseLatency accepts "auto", "-1" or a Go duration string.
func ParseLatency(s string) (Latency, error) {
	s = strings.TrimSpace(s)
	if s == "auto" || s == "-1" {
		return LatencyAuto, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: latency %q", core.ErrConfigInvalid, s)
	}
	if d < 0 {
		return LatencyAuto, nil
	}
	return Latency(d), nil
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `avbstream: ...`.
type configRoot struct {
	AVBStream Config `mapstructure:"avbstream"`
}

// Load loads configuration from file. An empty path yields the defaults.
// The YAML file uses `avbstream:` as root key; env vars use AVBSTREAM_ prefix (e.g., AVBSTREAM_NETWORK_INTERFACE).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "avbstream.log.level" -> env "AVBSTREAM_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		latencyHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&root, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.AVBStream

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "avbstream." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("avbstream.log.level", log.DefaultLevel)
	v.SetDefault("avbstream.log.pattern", log.DefaultPattern)
	v.SetDefault("avbstream.log.time", log.DefaultTime)
	v.SetDefault("avbstream.log.file.enabled", false)
	v.SetDefault("avbstream.log.file.filename", "/var/log/avbstream/avbstream.log")
	v.SetDefault("avbstream.log.file.max_size", 100)
	v.SetDefault("avbstream.log.file.max_age", 30)
	v.SetDefault("avbstream.log.file.max_backups", 5)
	v.SetDefault("avbstream.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("avbstream.metrics.enabled", false)
	v.SetDefault("avbstream.metrics.listen", ":9093")
	v.SetDefault("avbstream.metrics.path", "/metrics")

	// Network defaults
	v.SetDefault("avbstream.network.interface", "")
	v.SetDefault("avbstream.network.capture_file", "")
	v.SetDefault("avbstream.network.poll_timeout", "100ms")
	v.SetDefault("avbstream.ptp.device", "")

	// Talker defaults
	v.SetDefault("avbstream.talker.latency", "auto")
	v.SetDefault("avbstream.talker.use_ptp_time", true)
	v.SetDefault("avbstream.talker.package_count", 0)
	v.SetDefault("avbstream.talker.chunk_size", 4096)
	v.SetDefault("avbstream.talker.sync", false)
	v.SetDefault("avbstream.talker.pcm.format", "S16LE")
	v.SetDefault("avbstream.talker.pcm.rate", 48000)
	v.SetDefault("avbstream.talker.pcm.channels", 2)

	// Listener defaults
	v.SetDefault("avbstream.listener.buffer_size", 4096000)
	v.SetDefault("avbstream.listener.timeout", "0s")
}

// Default returns the configuration produced by an empty file.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// latencyHook decodes "auto" and duration strings into Latency.
func latencyHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Latency(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseLatency(v)
		case int:
			if v < 0 {
				return LatencyAuto, nil
			}
			return Latency(v), nil
		case int64:
			if v < 0 {
				return LatencyAuto, nil
			}
			return Latency(v), nil
		}
		return data, nil
	}
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}

	// ── Network ──
	if cfg.Network.PollTimeout <= 0 {
		cfg.Network.PollTimeout = 100 * time.Millisecond
	}

	// ── Talker ──
	if cfg.Talker.PackageCount < 0 {
		return fmt.Errorf("%w: talker.package_count %d", core.ErrConfigInvalid, cfg.Talker.PackageCount)
	}
	if cfg.Talker.ChunkSize <= 0 {
		return fmt.Errorf("%w: talker.chunk_size %d", core.ErrConfigInvalid, cfg.Talker.ChunkSize)
	}
	switch cfg.Talker.PCM.Format {
	case "S16LE", "S24LE":
	default:
		return fmt.Errorf("%w: talker.pcm.format %q (must be S16LE/S24LE)", core.ErrConfigInvalid, cfg.Talker.PCM.Format)
	}
	if cfg.Talker.PCM.Channels <= 0 || cfg.Talker.PCM.Channels > 8 {
		return fmt.Errorf("%w: talker.pcm.channels %d", core.ErrConfigInvalid, cfg.Talker.PCM.Channels)
	}

	// ── Listener ──
	if cfg.Listener.BufferSize <= 0 {
		return fmt.Errorf("%w: listener.buffer_size %d", core.ErrConfigInvalid, cfg.Listener.BufferSize)
	}
	if cfg.Listener.Timeout < 0 {
		return fmt.Errorf("%w: listener.timeout %s", core.ErrConfigInvalid, cfg.Listener.Timeout)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}

	return nil
}
