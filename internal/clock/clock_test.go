package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/avbstream/internal/core"
)

func TestSystemClock(t *testing.T) {
	before := core.ClockTime(time.Now().UnixNano())
	now, err := SystemClock{}.Now()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, uint64(now), uint64(before))
}

func TestFallback(t *testing.T) {
	broken := Func(func() (core.ClockTime, error) { return core.ClockTimeNone, ErrUnavailable })
	fixed := Func(func() (core.ClockTime, error) { return 42, nil })
	other := Func(func() (core.ClockTime, error) { return 7, nil })

	tests := []struct {
		name      string
		primary   Clock
		secondary Clock
		want      core.ClockTime
	}{
		{"primary wins", fixed, other, 42},
		{"primary fails", broken, other, 7},
		{"no primary", nil, other, 7},
		{"primary none", Func(func() (core.ClockTime, error) { return core.ClockTimeNone, nil }), other, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fallback(tt.primary, tt.secondary).Now()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackBothFail(t *testing.T) {
	broken := Func(func() (core.ClockTime, error) { return core.ClockTimeNone, ErrUnavailable })
	_, err := Fallback(broken, broken).Now()
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpenPTPMissingDevice(t *testing.T) {
	_, err := OpenPTP(PTPConfig{Device: "/nonexistent/ptp9"})
	assert.Error(t, err)
}
