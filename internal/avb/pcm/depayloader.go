package pcm

import (
	"fmt"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/pkg/wire"
)

// Depayloader strips AM824 labels back into interleaved PCM. Output
// timestamps are derived from the AVTP timestamp of the first frame and
// then advanced by each frame's duration.
type Depayloader struct {
	format   Format
	outputTS core.ClockTime
	logger   log.Logger
}

func NewDepayloader() *Depayloader {
	return &Depayloader{
		outputTS: core.ClockTimeNone,
		logger:   log.Component("pcm-depayloader"),
	}
}

func (d *Depayloader) Name() string { return "pcm" }

// Format is the negotiated format, zero before ParseCaps.
func (d *Depayloader) Format() Format { return d.format }

func (d *Depayloader) ValidateCIP(h *wire.CIPHeader) error {
	if h.EOH1() != 0 || h.EOH2() != wire.DefaultEOH2 || h.SID() != wire.DefaultSID ||
		h.FN() != 0 || h.SPH() != 0 || h.FMT() != wire.FMTAudio {
		return wire.ErrInvalidCIPHeader
	}
	return nil
}

func (d *Depayloader) ParseCaps(f wire.Frame) (*core.Caps, error) {
	if len(f.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", core.ErrNotRawPCM)
	}
	if len(f.Payload)%quadletLen != 0 {
		d.logger.Warnf("payload size %d not a multiple of 4", len(f.Payload))
	}

	sfc := int(f.CIP.FDF() & 0x7)
	if sfc >= len(sfcTable) {
		return nil, fmt.Errorf("%w: sfc %d", core.ErrUnsupportedFormat, sfc)
	}
	channels := int(f.CIP.DBS())
	if channels == 0 {
		return nil, fmt.Errorf("%w: dbs 0", core.ErrUnsupportedFormat)
	}

	label := f.Payload[0]
	if label>>4 != 0x4 {
		return nil, fmt.Errorf("%w: label %#x", core.ErrNotRawPCM, label)
	}
	var width int
	switch label & 0x3 {
	case 0:
		width = 24
	case 2:
		width = 16
	default:
		return nil, fmt.Errorf("%w: label %#x", core.ErrNotRawPCM, label)
	}

	d.format = Format{Rate: sfcTable[sfc].rate, Channels: channels, Width: width}
	d.logger.Debugf("%d bit pcm, %d Hz, %d channels", width, d.format.Rate, channels)
	return d.format.Caps(), nil
}

func (d *Depayloader) OutputSize(pktSize int) int {
	switch d.format.Width {
	case 16:
		return pktSize / 2
	case 24:
		return pktSize / 4 * 3
	}
	return 0
}

func (d *Depayloader) Process(f wire.Frame, out *core.Buffer, tb avb.TimeBase) error {
	if d.format.Width == 0 {
		return core.ErrNotNegotiated
	}
	sb := d.format.sampleBytes()
	n := 0
	for q := 0; q+quadletLen <= len(f.Payload) && n+sb <= len(out.Data); q += quadletLen {
		n += copy(out.Data[n:n+sb], f.Payload[q+1:q+1+sb])
	}
	out.Data = out.Data[:n]
	out.Duration = d.format.duration(n)

	if !d.outputTS.IsValid() {
		if f.AVTPDU.TV() != 0 {
			if now, ok := tb.Now(); ok {
				d.outputTS = avb.ExtendTimestamp(f.AVTPDU.AVTPTimestamp(), now, tb.Base)
			}
		}
	} else {
		d.outputTS += out.Duration
	}

	out.PTS = d.outputTS
	out.DTS = d.outputTS
	return nil
}

func (d *Depayloader) ResetTimestamp() {
	d.outputTS = core.ClockTimeNone
}
