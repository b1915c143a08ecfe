//go:build !linux

package clock

import (
	"firestige.xyz/avbstream/internal/core"
)

// PTPClock is unavailable off linux.
type PTPClock struct{}

func OpenPTP(cfg PTPConfig) (*PTPClock, error) {
	return nil, ErrUnsupported
}

func (c *PTPClock) Now() (core.ClockTime, error) {
	return core.ClockTimeNone, ErrUnsupported
}

func (c *PTPClock) Close() error { return nil }
