// Package pcm maps interleaved 16/24-bit PCM to and from IEC 61883-6 AM824 quadlets.
package pcm

import (
	"fmt"

	"firestige.xyz/avbstream/internal/core"
)

// AM824 labels for multi-bit linear audio.
const (
	label16 = 0x42
	label24 = 0x40
)

const (
	quadletLen = 4
	// maxPacketLen caps the payload of one frame.
	maxPacketLen = 1024
	// defaultPackageCount bounds SYT blocks per frame when none is configured.
	defaultPackageCount = 128
	// MaxChannels keeps one SYT block within maxPacketLen at every rate.
	MaxChannels = 8
)

// sfcTable maps a sampling frequency code to its rate and SYT interval.
var sfcTable = [...]struct {
	rate        int
	sytInterval int
}{
	{32000, 8},
	{44100, 8},
	{48000, 8},
	{88200, 16},
	{96000, 16},
	{176400, 32},
	{192000, 32},
}

// SFC returns the sampling frequency code for rate.
func SFC(rate int) (uint8, bool) {
	for i, e := range sfcTable {
		if e.rate == rate {
			return uint8(i), true
		}
	}
	return 0, false
}

// Format describes interleaved little-endian PCM.
type Format struct {
	Rate     int
	Channels int
	Width    int // bits per sample, 16 or 24
}

// ParseWidth maps a sample format name to its width.
func ParseWidth(name string) (int, error) {
	switch name {
	case "S16LE":
		return 16, nil
	case "S24LE":
		return 24, nil
	}
	return 0, fmt.Errorf("%w: pcm format %q", core.ErrUnsupportedFormat, name)
}

// FormatName is the inverse of ParseWidth.
func (f Format) FormatName() string {
	if f.Width == 24 {
		return "S24LE"
	}
	return "S16LE"
}

// Validate checks the format against what AM824 framing supports.
func (f Format) Validate() error {
	if f.Width != 16 && f.Width != 24 {
		return fmt.Errorf("%w: width %d", core.ErrUnsupportedFormat, f.Width)
	}
	if _, ok := SFC(f.Rate); !ok {
		return fmt.Errorf("%w: rate %d", core.ErrUnsupportedFormat, f.Rate)
	}
	if f.Channels < 1 || f.Channels > MaxChannels {
		return fmt.Errorf("%w: channels %d", core.ErrUnsupportedFormat, f.Channels)
	}
	return nil
}

// BytesPerSecond is the input byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.Rate * f.Channels * f.Width / 8
}

// Caps describes the format as raw audio caps.
func (f Format) Caps() *core.Caps {
	return core.NewCaps("audio/x-raw").
		Set("format", f.FormatName()).
		Set("rate", f.Rate).
		Set("channels", f.Channels)
}

func (f Format) sampleBytes() int {
	return f.Width / 8
}

// duration is the play time of n input bytes.
func (f Format) duration(n int) core.ClockTime {
	return core.ClockTime(uint64(n) * 8 * uint64(core.Second) / uint64(f.Channels) / uint64(f.Width) / uint64(f.Rate))
}
