// Package avb implements the AVB talker and listener engines. Stream formats
// plug in through Payloader and Depayloader.
package avb

import (
	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/pkg/wire"
)

// StreamFormat holds the per-stream CIP fields a payloader announces.
type StreamFormat struct {
	DBS uint8
	FN  uint8
	SPH uint8
	FMT uint8
	FDF uint8
	SYT uint16
}

// Apply writes the format into a CIP header template.
func (f StreamFormat) Apply(h *wire.CIPHeader) {
	h.SetDBS(f.DBS)
	h.SetFN(f.FN)
	h.SetSPH(f.SPH)
	h.SetFMT(f.FMT)
	h.SetFDF(f.FDF)
	h.SetSYT(f.SYT)
}

// Payloader packs host media into CIP payloads on the talker side.
type Payloader interface {
	// Name labels metrics and logs, e.g. "pcm".
	Name() string
	StreamFormat() StreamFormat
	// DefaultPackageCount is the package count used when none is configured.
	DefaultPackageCount() int
	// PacketLen returns the payload length of the next packet given the
	// unconsumed input bytes and the configured package count.
	PacketLen(remaining, packageCount int) int
	// DataBlocks is the DBC advance for a payload of payloadLen bytes.
	DataBlocks(payloadLen int) uint8
	// Pack fills dst from src and reports the input bytes consumed and the
	// presentation duration they cover.
	Pack(dst, src []byte) (consumed int, duration core.ClockTime)
}

// TimeRewriter is implemented by payloaders that carry their own timestamps
// inside the payload (SPH=1).
type TimeRewriter interface {
	RewriteTime(payload []byte, ptpTS, pts core.ClockTime)
}

// TimeBase is the listener's view of the pipeline clock.
type TimeBase struct {
	Clock clock.Clock
	Base  core.ClockTime
}

// Now reads the pipeline clock. ok is false when the clock is unreadable.
func (tb TimeBase) Now() (now core.ClockTime, ok bool) {
	if tb.Clock == nil {
		return core.ClockTimeNone, false
	}
	t, err := tb.Clock.Now()
	if err != nil || !t.IsValid() {
		return core.ClockTimeNone, false
	}
	return t, true
}

// Depayloader turns received frames back into host media on the listener side.
type Depayloader interface {
	Name() string
	// ValidateCIP accepts or rejects a frame by its CIP header.
	ValidateCIP(h *wire.CIPHeader) error
	// ParseCaps derives the output format from the first accepted frame.
	ParseCaps(f wire.Frame) (*core.Caps, error)
	// OutputSize is the output buffer size for a payload of pktSize bytes. 0 means not negotiated.
	OutputSize(pktSize int) int
	// Process unpacks f into out.Data and sets out's timestamps.
	Process(f wire.Frame, out *core.Buffer, tb TimeBase) error
	// ResetTimestamp drops the timestamp extrapolation state.
	ResetTimestamp()
}
