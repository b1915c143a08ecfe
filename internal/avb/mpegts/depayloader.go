package mpegts

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/pkg/wire"
)

// Depayloader strips the sub-timestamp and passes TS packets through. The
// output timestamp is rebuilt whenever the sub-timestamp changes.
type Depayloader struct {
	lastSubTS    uint32
	haveSubTS    bool
	outputTS     core.ClockTime
	lastOutputTS core.ClockTime
}

func NewDepayloader() *Depayloader {
	return &Depayloader{
		outputTS:     core.ClockTimeNone,
		lastOutputTS: core.ClockTimeNone,
	}
}

func (d *Depayloader) Name() string { return "mpegts" }

func (d *Depayloader) ValidateCIP(h *wire.CIPHeader) error {
	if h.EOH1() != 0 || h.EOH2() != wire.DefaultEOH2 || h.SID() != wire.DefaultSID ||
		h.DBS() != dbs || h.FN() != fn || h.SPH() != sph ||
		h.FMT() != wire.FMTMPEGTS || h.SYT() != 0 {
		return wire.ErrInvalidCIPHeader
	}
	return nil
}

// Caps is the fixed output format.
func Caps() *core.Caps {
	return core.NewCaps("video/mpegts").
		Set("systemstream", true).
		Set("packetsize", PacketSize)
}

func (d *Depayloader) ParseCaps(f wire.Frame) (*core.Caps, error) {
	if len(f.Payload) <= subTimestampLen {
		return nil, fmt.Errorf("%w: payload of %d bytes", core.ErrUnsupportedFormat, len(f.Payload))
	}
	return Caps(), nil
}

func (d *Depayloader) OutputSize(pktSize int) int {
	if pktSize <= subTimestampLen {
		return 0
	}
	return pktSize - subTimestampLen
}

func (d *Depayloader) Process(f wire.Frame, out *core.Buffer, tb avb.TimeBase) error {
	if len(f.Payload) < subTimestampLen {
		return fmt.Errorf("%w: payload of %d bytes", wire.ErrPacketTooShort, len(f.Payload))
	}
	n := copy(out.Data, f.Payload[subTimestampLen:])
	out.Data = out.Data[:n]

	sub := binary.BigEndian.Uint32(f.Payload)
	if !d.haveSubTS || sub != d.lastSubTS {
		d.haveSubTS = true
		d.lastSubTS = sub
		if now, ok := tb.Now(); ok {
			ts := avb.RewrapAfter(d.lastOutputTS, avb.ExtendTimestamp(sub, now, tb.Base))
			d.outputTS = ts
			d.lastOutputTS = ts
		}
	}

	out.PTS = d.outputTS
	out.DTS = d.outputTS
	out.Duration = 0
	return nil
}

func (d *Depayloader) ResetTimestamp() {
	d.lastOutputTS = core.ClockTimeNone
}
