// Package mpegts maps 188-byte MPEG transport stream packets to and from
// IEC 61883-4 CIP payloads.
package mpegts

import (
	"encoding/binary"

	"firestige.xyz/avbstream/internal/core"
)

const (
	// PacketSize is the size of one transport stream packet.
	PacketSize = 188
	syncByte   = 0x47

	// subTimestampLen is the per-frame timestamp prefix ahead of the TS packets.
	subTimestampLen = 4
)

// PCR returns the program clock reference carried in pkt's adaptation field.
func PCR(pkt []byte) (core.ClockTime, bool) {
	if len(pkt) < 12 || pkt[0] != syncByte {
		return core.ClockTimeNone, false
	}
	if pkt[3]&0x20 == 0 || pkt[4] < 7 || pkt[5]&0x10 == 0 {
		return core.ClockTimeNone, false
	}
	pcr1 := binary.BigEndian.Uint32(pkt[6:10])
	pcr2 := binary.BigEndian.Uint16(pkt[10:12])
	base := uint64(pcr1)<<1 | uint64(pcr2&0x8000)>>15
	ext := uint64(pcr2 & 0x01ff)
	ticks := base*300 + ext%300
	// 27 MHz ticks to nanoseconds
	return core.ClockTime(ticks * 1000 / 27), true
}

// PESTimestamps reads PTS and DTS from a PES header starting in pkt. A
// missing DTS is reported as ClockTimeNone; ok is false without a PTS.
func PESTimestamps(pkt []byte) (pts, dts core.ClockTime, ok bool) {
	pts, dts = core.ClockTimeNone, core.ClockTimeNone
	if len(pkt) < PacketSize || pkt[0] != syncByte || pkt[1]&0x40 == 0 {
		return pts, dts, false
	}
	adaptation := (pkt[3] & 0x30) >> 4
	if adaptation&0x1 == 0 {
		return pts, dts, false
	}
	off := 4
	if adaptation > 1 {
		off += int(pkt[4]) + 1
	}
	if off+9 > len(pkt) {
		return pts, dts, false
	}
	pes := pkt[off:]
	if pes[0] != 0 || pes[1] != 0 || pes[2] != 1 {
		return pts, dts, false
	}
	// start code, stream id and length precede the '10' marker bits
	if pes[6]>>6 != 0x2 {
		return pts, dts, false
	}
	flags := pes[7]
	off = 9
	if flags&0x80 != 0 && off+5 <= len(pes) {
		if t, valid := readMPEGTime(pes[off:]); valid {
			pts, ok = t, true
			off += 5
		}
	}
	if flags&0x40 != 0 && off+5 <= len(pes) {
		if t, valid := readMPEGTime(pes[off:]); valid {
			dts = t
		}
	}
	return pts, dts, ok
}

// readMPEGTime decodes a 33-bit 90 kHz timestamp from its 5-byte form with
// marker bits in bytes 0, 2 and 4.
func readMPEGTime(b []byte) (core.ClockTime, bool) {
	if b[0]&0x01 == 0 || b[2]&0x01 == 0 || b[4]&0x01 == 0 {
		return core.ClockTimeNone, false
	}
	t := uint64(b[0]&0x0e) << 29
	t |= uint64(b[1]) << 22
	t |= uint64(b[2]&0xfe) << 14
	t |= uint64(b[3]) << 7
	t |= uint64(b[4]&0xfe) >> 1
	return core.ClockTime(t * 100000 / 9), true
}
