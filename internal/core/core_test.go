package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockTime(t *testing.T) {
	assert.False(t, ClockTimeNone.IsValid())
	assert.True(t, ClockTime(0).IsValid())
	assert.Equal(t, "none", ClockTimeNone.String())
	assert.Equal(t, "0:00:01.500000000", (1500 * Millisecond).String())
	assert.Equal(t, "1:01:01.000000001", ClockTime(3661*time.Second+1).String())
	assert.Equal(t, time.Duration(0), ClockTimeNone.Duration())
	assert.Equal(t, 100*time.Millisecond, (100 * Millisecond).Duration())
	assert.Equal(t, ClockTime(0), ClockTimeFromDuration(-time.Second))
}

func TestNewBuffer(t *testing.T) {
	b := NewBuffer([]byte{1, 2})
	assert.Equal(t, ClockTimeNone, b.PTS)
	assert.Equal(t, ClockTimeNone, b.DTS)
	assert.Equal(t, ClockTimeNone, b.Duration)
	assert.False(t, b.Discont)
}

func TestCaps(t *testing.T) {
	c := NewCaps("audio/x-raw").
		Set("format", "S16LE").
		Set("rate", 48000).
		Set("channels", 2)
	assert.Equal(t, "audio/x-raw, format=(string)S16LE, rate=(int)48000, channels=(int)2", c.String())
	assert.Equal(t, 48000, c.Int("rate"))
	assert.Equal(t, "S16LE", c.StringField("format"))
	assert.Equal(t, 0, c.Int("missing"))

	c.Set("rate", 44100)
	assert.Equal(t, 44100, c.Int("rate"))

	ts := NewCaps("video/mpegts").Set("systemstream", true).Set("packetsize", 188)
	assert.Equal(t, "video/mpegts, systemstream=(boolean)true, packetsize=(int)188", ts.String())

	var none *Caps
	assert.Equal(t, "NONE", none.String())
}

func TestSentinelErrorsWrap(t *testing.T) {
	err := fmt.Errorf("dial eth0: %w", ErrOpen)
	assert.True(t, errors.Is(err, ErrOpen))
	assert.False(t, errors.Is(err, ErrFlow))
}
