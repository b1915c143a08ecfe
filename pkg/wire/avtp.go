package wire

import (
	"encoding/binary"
	"net"
)

// AVTPDU field values used by 61883 encapsulation.
const (
	CDData    = 0
	CDControl = 1

	Subtype61883IIDC = 0x00

	DefaultVersion = 0
	DefaultTag     = 1
	DefaultChannel = 31
	DefaultTCode   = 0xA
	DefaultSY      = 0
)

// AVTPDUHeader is the AVTP common stream data header (IEEE 1722-2011 5.2).
//
//	byte 0      CD:1 subtype:7
//	byte 1      SV:1 version:3 MR:1 R:1 GV:1 TV:1
//	byte 2      sequence_num
//	byte 3      reserved:7 TU:1
//	byte 4-11   stream_id
//	byte 12-15  avtp_timestamp
//	byte 16-19  gateway_info
//	byte 20-21  stream_data_length
//	byte 22     tag:2 channel:6
//	byte 23     tcode:4 sy:4
type AVTPDUHeader [AVTPDUHeaderLen]byte

// InitAVTPDUHeader resets h to the 61883 stream defaults with an eight
// byte stream data length (CIP header only).
func InitAVTPDUHeader(h *AVTPDUHeader) {
	if h == nil {
		return
	}
	*h = AVTPDUHeader{}
	h.SetCD(CDData)
	h.SetSubtype(Subtype61883IIDC)
	h.SetSV(1)
	h.SetVersion(DefaultVersion)
	h.SetStreamDataLength(CIPHeaderLen)
	h.SetTag(DefaultTag)
	h.SetChannel(DefaultChannel)
	h.SetTCode(DefaultTCode)
	h.SetSY(DefaultSY)
}

// AsAVTPDUHeader views b as an AVTPDU header. b must hold at least AVTPDUHeaderLen bytes.
func AsAVTPDUHeader(b []byte) *AVTPDUHeader {
	return (*AVTPDUHeader)(b[:AVTPDUHeaderLen])
}

func setBits(b *byte, mask, shift, v uint8) {
	*b = *b&^(mask<<shift) | (v&mask)<<shift
}

func getBits(b byte, mask, shift uint8) uint8 {
	return (b >> shift) & mask
}

func (h *AVTPDUHeader) CD() uint8          { return getBits(h[0], 0x1, 7) }
func (h *AVTPDUHeader) SetCD(v uint8)      { setBits(&h[0], 0x1, 7, v) }
func (h *AVTPDUHeader) Subtype() uint8     { return getBits(h[0], 0x7f, 0) }
func (h *AVTPDUHeader) SetSubtype(v uint8) { setBits(&h[0], 0x7f, 0, v) }
func (h *AVTPDUHeader) SV() uint8          { return getBits(h[1], 0x1, 7) }
func (h *AVTPDUHeader) SetSV(v uint8)      { setBits(&h[1], 0x1, 7, v) }
func (h *AVTPDUHeader) Version() uint8     { return getBits(h[1], 0x7, 4) }
func (h *AVTPDUHeader) SetVersion(v uint8) { setBits(&h[1], 0x7, 4, v) }
func (h *AVTPDUHeader) MR() uint8          { return getBits(h[1], 0x1, 3) }
func (h *AVTPDUHeader) SetMR(v uint8)      { setBits(&h[1], 0x1, 3, v) }
func (h *AVTPDUHeader) R() uint8           { return getBits(h[1], 0x1, 2) }
func (h *AVTPDUHeader) SetR(v uint8)       { setBits(&h[1], 0x1, 2, v) }
func (h *AVTPDUHeader) GV() uint8          { return getBits(h[1], 0x1, 1) }
func (h *AVTPDUHeader) SetGV(v uint8)      { setBits(&h[1], 0x1, 1, v) }
func (h *AVTPDUHeader) TV() uint8          { return getBits(h[1], 0x1, 0) }
func (h *AVTPDUHeader) SetTV(v uint8)      { setBits(&h[1], 0x1, 0, v) }

func (h *AVTPDUHeader) SequenceNum() uint8     { return h[2] }
func (h *AVTPDUHeader) SetSequenceNum(v uint8) { h[2] = v }
func (h *AVTPDUHeader) TU() uint8              { return getBits(h[3], 0x1, 0) }
func (h *AVTPDUHeader) SetTU(v uint8)          { setBits(&h[3], 0x1, 0, v) }

// StreamID returns the 64-bit stream identifier.
func (h *AVTPDUHeader) StreamID() uint64 {
	return binary.BigEndian.Uint64(h[4:12])
}

// SetStreamID derives the stream identifier from a talker MAC address:
// the six address bytes followed by a zero unique id.
func (h *AVTPDUHeader) SetStreamID(mac net.HardwareAddr) {
	if len(mac) < macLen {
		return
	}
	var id [8]byte
	copy(id[:], mac[:macLen])
	copy(h[4:12], id[:])
}

func (h *AVTPDUHeader) AVTPTimestamp() uint32 {
	return binary.BigEndian.Uint32(h[12:16])
}

func (h *AVTPDUHeader) SetAVTPTimestamp(v uint32) {
	binary.BigEndian.PutUint32(h[12:16], v)
}

func (h *AVTPDUHeader) GatewayInfo() uint32 {
	return binary.BigEndian.Uint32(h[16:20])
}

func (h *AVTPDUHeader) SetGatewayInfo(v uint32) {
	binary.BigEndian.PutUint32(h[16:20], v)
}

// StreamDataLength is the number of bytes after the AVTPDU header, CIP header included.
func (h *AVTPDUHeader) StreamDataLength() uint16 {
	return binary.BigEndian.Uint16(h[20:22])
}

func (h *AVTPDUHeader) SetStreamDataLength(v uint16) {
	binary.BigEndian.PutUint16(h[20:22], v)
}

func (h *AVTPDUHeader) Tag() uint8         { return getBits(h[22], 0x3, 6) }
func (h *AVTPDUHeader) SetTag(v uint8)     { setBits(&h[22], 0x3, 6, v) }
func (h *AVTPDUHeader) Channel() uint8     { return getBits(h[22], 0x3f, 0) }
func (h *AVTPDUHeader) SetChannel(v uint8) { setBits(&h[22], 0x3f, 0, v) }
func (h *AVTPDUHeader) TCode() uint8       { return getBits(h[23], 0xf, 4) }
func (h *AVTPDUHeader) SetTCode(v uint8)   { setBits(&h[23], 0xf, 4, v) }
func (h *AVTPDUHeader) SY() uint8          { return getBits(h[23], 0xf, 0) }
func (h *AVTPDUHeader) SetSY(v uint8)      { setBits(&h[23], 0xf, 0, v) }

// ValidateAVTPDUHeader checks the fields a 61883 listener depends on.
// The R, MR and GV bits are not inspected.
func ValidateAVTPDUHeader(b []byte) error {
	if len(b) < AVTPDUHeaderLen {
		return ErrPacketTooShort
	}
	h := AsAVTPDUHeader(b)
	switch {
	case h.CD() != CDData,
		h.Subtype() != Subtype61883IIDC,
		h.Version() != DefaultVersion,
		h.StreamDataLength() < 2,
		h.Tag() != DefaultTag,
		h.Channel() != DefaultChannel,
		h.TCode() != DefaultTCode:
		return ErrInvalidAVTPDUHeader
	}
	return nil
}
