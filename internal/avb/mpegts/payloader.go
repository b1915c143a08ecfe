package mpegts

import (
	"encoding/binary"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/transport"
	"firestige.xyz/avbstream/pkg/wire"
)

const (
	// dbs is the data block size recommended for 61883-4.
	dbs = 6
	fn  = 3
	sph = 1

	defaultPackageCount = 7

	// MaxPackageCount is the most TS packets one frame carries within the MTU.
	MaxPackageCount = (transport.MTU + wire.EthernetHeaderLen - wire.HeaderLen - subTimestampLen) / PacketSize
)

// Payloader copies whole TS packets behind a 4-byte sub-timestamp.
type Payloader struct{}

func NewPayloader() *Payloader {
	return &Payloader{}
}

func (p *Payloader) Name() string { return "mpegts" }

func (p *Payloader) StreamFormat() avb.StreamFormat {
	return avb.StreamFormat{DBS: dbs, FN: fn, SPH: sph, FMT: wire.FMTMPEGTS, FDF: 0, SYT: 0}
}

func (p *Payloader) DefaultPackageCount() int { return defaultPackageCount }

func (p *Payloader) PacketLen(remaining, packageCount int) int {
	count := remaining / PacketSize
	if count > packageCount {
		count = packageCount
	}
	if count > MaxPackageCount {
		count = MaxPackageCount
	}
	if count == 0 {
		count = 1
	}
	return count*PacketSize + subTimestampLen
}

func (p *Payloader) DataBlocks(payloadLen int) uint8 {
	return uint8(payloadLen / dbs / 4)
}

// Pack leaves the sub-timestamp slot for RewriteTime. A short final packet
// is zero-filled.
func (p *Payloader) Pack(dst, src []byte) (int, core.ClockTime) {
	clear(dst[:subTimestampLen])
	n := copy(dst[subTimestampLen:], src)
	clear(dst[subTimestampLen+n:])
	return n, 0
}

// RewriteTime stores the low 32 bits of the AVTP-domain time in the slot.
func (p *Payloader) RewriteTime(payload []byte, ptpTS, pts core.ClockTime) {
	if len(payload) < subTimestampLen {
		return
	}
	binary.BigEndian.PutUint32(payload, avb.Low32(ptpTS))
}
