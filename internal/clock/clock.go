// Package clock provides the time sources used to stamp and rebuild AVTP presentation times.
package clock

import (
	"errors"
	"time"

	"firestige.xyz/avbstream/internal/core"
)

var (
	// ErrUnavailable is returned when a time source cannot be read.
	ErrUnavailable = errors.New("clock: time unavailable")
	// ErrUnsupported is returned on platforms without PTP access.
	ErrUnsupported = errors.New("clock: ptp time requires linux")
)

// Clock reports an absolute time in nanoseconds.
type Clock interface {
	Now() (core.ClockTime, error)
}

// Func adapts a function to Clock.
type Func func() (core.ClockTime, error)

func (f Func) Now() (core.ClockTime, error) { return f() }

// SystemClock reads CLOCK_REALTIME.
type SystemClock struct{}

func (SystemClock) Now() (core.ClockTime, error) {
	return core.ClockTime(time.Now().UnixNano()), nil
}

type fallback struct {
	primary   Clock
	secondary Clock
}

// Fallback reads primary and falls back to secondary when primary fails.
// A nil primary always uses secondary.
func Fallback(primary, secondary Clock) Clock {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) Now() (core.ClockTime, error) {
	if f.primary != nil {
		if t, err := f.primary.Now(); err == nil && t.IsValid() {
			return t, nil
		}
	}
	return f.secondary.Now()
}
