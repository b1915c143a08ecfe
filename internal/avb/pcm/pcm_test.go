package pcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/pkg/wire"
)

func TestSFC(t *testing.T) {
	tests := []struct {
		rate int
		sfc  uint8
		syt  int
	}{
		{32000, 0, 8},
		{44100, 1, 8},
		{48000, 2, 8},
		{88200, 3, 16},
		{96000, 4, 16},
		{176400, 5, 32},
		{192000, 6, 32},
	}
	for _, tt := range tests {
		sfc, ok := SFC(tt.rate)
		require.True(t, ok, "rate %d", tt.rate)
		assert.Equal(t, tt.sfc, sfc)
		assert.Equal(t, tt.syt, sfcTable[sfc].sytInterval)
	}

	_, ok := SFC(22050)
	assert.False(t, ok)
}

func TestFormatValidate(t *testing.T) {
	assert.NoError(t, Format{Rate: 48000, Channels: 2, Width: 16}.Validate())
	assert.NoError(t, Format{Rate: 192000, Channels: MaxChannels, Width: 24}.Validate())

	for _, f := range []Format{
		{Rate: 48000, Channels: 2, Width: 32},
		{Rate: 22050, Channels: 2, Width: 16},
		{Rate: 48000, Channels: 0, Width: 16},
		{Rate: 48000, Channels: 9, Width: 16},
		{Rate: 192000, Channels: 16, Width: 16},
	} {
		assert.ErrorIs(t, f.Validate(), core.ErrUnsupportedFormat, "%+v", f)
	}
}

func TestParseWidth(t *testing.T) {
	w, err := ParseWidth("S24LE")
	require.NoError(t, err)
	assert.Equal(t, 24, w)
	assert.Equal(t, "S24LE", Format{Width: w}.FormatName())

	_, err = ParseWidth("F32LE")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestPacketLen(t *testing.T) {
	tests := []struct {
		name         string
		format       Format
		remaining    int
		packageCount int
		want         int
	}{
		{"capped at 1024", Format{48000, 2, 16}, 4096, 128, 1024},
		{"at least one block", Format{48000, 2, 16}, 10, 128, 64},
		{"package count bound", Format{48000, 2, 16}, 4096, 4, 256},
		{"24 bit expansion", Format{48000, 2, 24}, 96, 128, 128},
		{"24 bit capped", Format{48000, 2, 24}, 3000, 128, 1024},
		{"eight channels", Format{48000, 8, 16}, 4096, 128, 1024},
		{"96k interval", Format{96000, 2, 16}, 4096, 128, 1024},
		{"192k eight channels fills the cap", Format{192000, 8, 16}, 4096, 128, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPayloader(tt.format)
			require.NoError(t, err)
			got := p.PacketLen(tt.remaining, tt.packageCount)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, got%(tt.format.Channels*sfcTable[p.sfc].sytInterval*quadletLen))
		})
	}
}

func TestPayloaderStreamFormat(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 44100, Channels: 6, Width: 24})
	require.NoError(t, err)
	f := p.StreamFormat()
	assert.Equal(t, avb.StreamFormat{DBS: 6, FMT: wire.FMTAudio, FDF: 1, SYT: 0xFFFF}, f)
	assert.Equal(t, uint8(1024/6/4), p.DataBlocks(1024))
	assert.Equal(t, 128, p.DefaultPackageCount())
}

func TestPackDuration(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 48000, Channels: 2, Width: 16})
	require.NoError(t, err)

	dst := make([]byte, 1024)
	n, dur := p.Pack(dst, make([]byte, 4096))
	assert.Equal(t, 512, n)
	assert.Equal(t, core.ClockTime(2666666), dur)
}

func TestPackShortTail(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 48000, Channels: 2, Width: 16})
	require.NoError(t, err)

	dst := make([]byte, 64)
	for i := range dst {
		dst[i] = 0xAA
	}
	n, _ := p.Pack(dst, []byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{0x42, 1, 2, 0, 0x42, 3, 4, 0, 0x42, 5, 6, 0}, dst[:12])
	for q := 12; q < len(dst); q += quadletLen {
		assert.Equal(t, []byte{0x42, 0, 0, 0}, dst[q:q+quadletLen])
	}
}

// frameFor wraps a payload in a stream header built from p's format.
func frameFor(t *testing.T, p *Payloader, payload []byte, tv bool, avtpTS uint32) wire.Frame {
	t.Helper()
	h := new(wire.Header)
	wire.InitHeader(h)
	p.StreamFormat().Apply(h.CIP())
	h.AVTPDU().SetStreamDataLength(uint16(len(payload) + wire.CIPHeaderLen))
	if tv {
		h.AVTPDU().SetTV(1)
		h.AVTPDU().SetAVTPTimestamp(avtpTS)
	}
	f, err := wire.ParseFrame(append(h[:], payload...))
	require.NoError(t, err)
	return f
}

func TestPackUnpack(t *testing.T) {
	for _, format := range []Format{
		{Rate: 48000, Channels: 2, Width: 16},
		{Rate: 96000, Channels: 4, Width: 24},
	} {
		t.Run(format.FormatName(), func(t *testing.T) {
			p, err := NewPayloader(format)
			require.NoError(t, err)

			in := make([]byte, 3*format.Channels*format.sampleBytes()*16)
			for i := range in {
				in[i] = byte(i*13 + 1)
			}

			d := NewDepayloader()
			var out []byte
			for consumed := 0; consumed < len(in); {
				payload := make([]byte, p.PacketLen(len(in)-consumed, 1))
				n, _ := p.Pack(payload, in[consumed:])
				consumed += n

				f := frameFor(t, p, payload, true, 0)
				require.NoError(t, d.ValidateCIP(f.CIP))
				if d.Format().Width == 0 {
					caps, err := d.ParseCaps(f)
					require.NoError(t, err)
					assert.Equal(t, format.Caps().String(), caps.String())
				}
				buf := core.NewBuffer(make([]byte, d.OutputSize(len(payload))))
				require.NoError(t, d.Process(f, &buf, avb.TimeBase{}))
				out = append(out, buf.Data...)
			}
			assert.Equal(t, in, out)
			assert.Equal(t, format, d.Format())
		})
	}
}

func TestParseCapsErrors(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 48000, Channels: 2, Width: 16})
	require.NoError(t, err)
	payload := make([]byte, 64)
	p.Pack(payload, make([]byte, 32))

	tests := []struct {
		name   string
		mutate func(f wire.Frame)
		target error
	}{
		{"reserved sfc", func(f wire.Frame) { f.CIP.SetFDF(7) }, core.ErrUnsupportedFormat},
		{"zero dbs", func(f wire.Frame) { f.CIP.SetDBS(0) }, core.ErrUnsupportedFormat},
		{"not am824", func(f wire.Frame) { f.Payload[0] = 0x12 }, core.ErrNotRawPCM},
		{"unknown width", func(f wire.Frame) { f.Payload[0] = 0x41 }, core.ErrNotRawPCM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frameFor(t, p, append([]byte(nil), payload...), false, 0)
			tt.mutate(f)
			_, err := NewDepayloader().ParseCaps(f)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseCapsWidth(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 176400, Channels: 3, Width: 24})
	require.NoError(t, err)
	payload := make([]byte, p.PacketLen(96, 1))
	p.Pack(payload, make([]byte, 96))

	d := NewDepayloader()
	_, err = d.ParseCaps(frameFor(t, p, payload, false, 0))
	require.NoError(t, err)
	assert.Equal(t, Format{Rate: 176400, Channels: 3, Width: 24}, d.Format())
	assert.Equal(t, 300, d.OutputSize(400))
}

func TestProcessTimestamps(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 48000, Channels: 2, Width: 16})
	require.NoError(t, err)
	payload := make([]byte, 64)
	p.Pack(payload, make([]byte, 32))

	now := 30 * core.Second
	tb := avb.TimeBase{
		Clock: clock.Func(func() (core.ClockTime, error) { return now, nil }),
		Base:  2 * core.Second,
	}
	d := NewDepayloader()
	_, err = d.ParseCaps(frameFor(t, p, payload, false, 0))
	require.NoError(t, err)

	process := func(f wire.Frame) core.Buffer {
		buf := core.NewBuffer(make([]byte, d.OutputSize(len(payload))))
		require.NoError(t, d.Process(f, &buf, tb))
		return buf
	}

	// no timestamp until a frame carries one
	b := process(frameFor(t, p, payload, false, 0))
	assert.False(t, b.PTS.IsValid())

	b = process(frameFor(t, p, payload, true, 12345))
	want := avb.ExtendTimestamp(12345, now, tb.Base)
	assert.Equal(t, want, b.PTS)
	assert.Equal(t, b.PTS, b.DTS)
	assert.Equal(t, core.ClockTime(166666), b.Duration)

	// later frames advance by duration and ignore their own timestamp
	b = process(frameFor(t, p, payload, true, 99))
	assert.Equal(t, want+166666, b.PTS)

	d.ResetTimestamp()
	b = process(frameFor(t, p, payload, true, 99))
	assert.Equal(t, avb.ExtendTimestamp(99, now, tb.Base), b.PTS)
}

func TestProcessBeforeCaps(t *testing.T) {
	p, err := NewPayloader(Format{Rate: 48000, Channels: 2, Width: 16})
	require.NoError(t, err)
	buf := core.NewBuffer(make([]byte, 32))
	err = NewDepayloader().Process(frameFor(t, p, make([]byte, 64), false, 0), &buf, avb.TimeBase{})
	assert.ErrorIs(t, err, core.ErrNotNegotiated)
}

func TestValidateCIP(t *testing.T) {
	h := new(wire.Header)
	wire.InitHeader(h)
	d := NewDepayloader()
	assert.ErrorIs(t, d.ValidateCIP(h.CIP()), wire.ErrInvalidCIPHeader)

	h.CIP().SetFMT(wire.FMTAudio)
	require.NoError(t, d.ValidateCIP(h.CIP()))

	h.CIP().SetSPH(1)
	assert.ErrorIs(t, d.ValidateCIP(h.CIP()), wire.ErrInvalidCIPHeader)
	h.CIP().SetSPH(0)
	h.CIP().SetFMT(wire.FMTMPEGTS)
	assert.ErrorIs(t, d.ValidateCIP(h.CIP()), wire.ErrInvalidCIPHeader)
}
