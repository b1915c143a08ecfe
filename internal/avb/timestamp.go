package avb

import (
	"firestige.xyz/avbstream/internal/core"
)

// wrapSpan is the range of a 32-bit AVTP timestamp in nanoseconds.
const wrapSpan = core.ClockTime(1) << 32

// Low32 truncates t to the 32 bits carried on the wire.
func Low32(t core.ClockTime) uint32 {
	return uint32(t)
}

// ExtendTimestamp rebuilds a running time from a 32-bit wire timestamp.
// now is the pipeline clock reading and base the pipeline base time. A wire
// value below the low 32 bits of now is taken to lie in the next wrap period.
func ExtendTimestamp(wire uint32, now, base core.ClockTime) core.ClockTime {
	low := now & (wrapSpan - 1)
	out := now - base - low + core.ClockTime(wire)
	if wire < uint32(low) {
		out += wrapSpan
	}
	return out
}

// RewrapAfter keeps reconstructed timestamps monotonic: when ts would fall
// behind last it is moved one wrap period forward.
func RewrapAfter(last, ts core.ClockTime) core.ClockTime {
	if last.IsValid() && last > ts {
		return ts + wrapSpan
	}
	return ts
}
