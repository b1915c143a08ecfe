package pcm

import (
	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/pkg/wire"
)

// Payloader packs PCM into AM824 quadlets, one per sample.
type Payloader struct {
	format      Format
	sfc         uint8
	sytInterval int
	label       byte
}

func NewPayloader(f Format) (*Payloader, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	sfc, _ := SFC(f.Rate)
	p := &Payloader{
		format:      f,
		sfc:         sfc,
		sytInterval: sfcTable[sfc].sytInterval,
		label:       label16,
	}
	if f.Width == 24 {
		p.label = label24
	}
	return p, nil
}

func (p *Payloader) Name() string { return "pcm" }

func (p *Payloader) Format() Format { return p.format }

func (p *Payloader) StreamFormat() avb.StreamFormat {
	return avb.StreamFormat{
		DBS: uint8(p.format.Channels),
		FN:  0,
		SPH: 0,
		FMT: wire.FMTAudio,
		FDF: p.sfc,
		SYT: 0xFFFF,
	}
}

func (p *Payloader) DefaultPackageCount() int { return defaultPackageCount }

// PacketLen sizes the next payload in whole SYT blocks of channels×interval
// quadlets, scaled from the remaining input and capped at maxPacketLen.
func (p *Payloader) PacketLen(remaining, packageCount int) int {
	block := p.format.Channels * p.sytInterval * quadletLen
	if p.format.Width == 16 {
		remaining *= 2
	} else {
		remaining = remaining * 4 / 3
	}
	if remaining > maxPacketLen {
		remaining = maxPacketLen
	}
	count := remaining / block
	if count == 0 {
		count = 1
	}
	if count > packageCount {
		count = packageCount
	}
	return block * count
}

func (p *Payloader) DataBlocks(payloadLen int) uint8 {
	return uint8(payloadLen / p.format.Channels / quadletLen)
}

// Pack writes one labelled quadlet per sample. Quadlets past the end of src
// carry the label and silence.
func (p *Payloader) Pack(dst, src []byte) (int, core.ClockTime) {
	sb := p.format.sampleBytes()
	used := 0
	for q := 0; q+quadletLen <= len(dst); q += quadletLen {
		dst[q], dst[q+1], dst[q+2], dst[q+3] = p.label, 0, 0, 0
		n := copy(dst[q+1:q+1+sb], src[used:])
		used += n
	}
	return used, p.format.duration(used)
}
