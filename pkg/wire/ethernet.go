// Package wire implements the IEEE 1722 frame layout: an 802.1Q tagged
// Ethernet header, the AVTPDU common stream header and the IEC 61883 CIP
// header. All multi-byte fields are big-endian.
package wire

import (
	"encoding/binary"
	"net"
)

const (
	// EthernetHeaderLen is the tagged Ethernet header length (DA, SA, 802.1Q tag, EtherType).
	EthernetHeaderLen = 18
	// AVTPDUHeaderLen is the AVTP common stream data header length.
	AVTPDUHeaderLen = 24
	// CIPHeaderLen is the two-quadlet CIP header length.
	CIPHeaderLen = 8
	// HeaderLen is the combined header length that precedes every payload.
	HeaderLen = EthernetHeaderLen + AVTPDUHeaderLen + CIPHeaderLen

	// EtherTypeVLAN is the 802.1Q tag protocol identifier.
	EtherTypeVLAN = 0x8100
	// EtherTypeAVTP is the IEEE 1722 EtherType.
	EtherTypeAVTP = 0x22F0

	DefaultPCP = 3
	DefaultCFI = 0
	DefaultVID = 2

	macLen = 6
)

// BroadcastAddr is the destination every talker sends to.
var BroadcastAddr = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EthernetHeader is an 802.1Q tagged Ethernet header.
//
//	0      6      12     14      16
//	| DA   | SA   | TPID | TCI   | EtherType |
type EthernetHeader [EthernetHeaderLen]byte

// InitEthernetHeader resets h to the talker defaults.
func InitEthernetHeader(h *EthernetHeader) {
	if h == nil {
		return
	}
	*h = EthernetHeader{}
	h.SetDA(BroadcastAddr)
	h.SetTPID(EtherTypeVLAN)
	h.SetPCP(DefaultPCP)
	h.SetCFI(DefaultCFI)
	h.SetVID(DefaultVID)
	h.SetEtherType(EtherTypeAVTP)
}

// SetDA copies a destination address. A nil header or short address is ignored.
func (h *EthernetHeader) SetDA(addr net.HardwareAddr) {
	if h == nil || len(addr) < macLen {
		return
	}
	copy(h[0:6], addr[:macLen])
}

// SetSA copies a source address. A nil header or short address is ignored.
func (h *EthernetHeader) SetSA(addr net.HardwareAddr) {
	if h == nil || len(addr) < macLen {
		return
	}
	copy(h[6:12], addr[:macLen])
}

// GetDA returns a copy of the destination address.
func (h *EthernetHeader) GetDA() net.HardwareAddr {
	if h == nil {
		return nil
	}
	return append(net.HardwareAddr(nil), h[0:6]...)
}

// GetSA returns a copy of the source address, or nil for a nil header.
func (h *EthernetHeader) GetSA() net.HardwareAddr {
	if h == nil {
		return nil
	}
	return append(net.HardwareAddr(nil), h[6:12]...)
}

// TPID returns the tag protocol identifier.
func (h *EthernetHeader) TPID() uint16 {
	return binary.BigEndian.Uint16(h[12:14])
}

func (h *EthernetHeader) SetTPID(v uint16) {
	binary.BigEndian.PutUint16(h[12:14], v)
}

func (h *EthernetHeader) tci() uint16 {
	return binary.BigEndian.Uint16(h[14:16])
}

func (h *EthernetHeader) setTCI(v uint16) {
	binary.BigEndian.PutUint16(h[14:16], v)
}

func (h *EthernetHeader) PCP() uint8 {
	return uint8(h.tci() >> 13)
}

func (h *EthernetHeader) CFI() uint8 {
	return uint8(h.tci()>>12) & 0x1
}

func (h *EthernetHeader) VID() uint16 {
	return h.tci() & 0x0fff
}

func (h *EthernetHeader) EtherType() uint16 {
	return binary.BigEndian.Uint16(h[16:18])
}

func (h *EthernetHeader) SetEtherType(v uint16) {
	binary.BigEndian.PutUint16(h[16:18], v)
}

// SetPCP writes the 3-bit priority code point.
func (h *EthernetHeader) SetPCP(v uint8) {
	h.setTCI(h.tci()&^0xe000 | uint16(v&0x7)<<13)
}

// SetCFI writes the canonical format indicator bit.
func (h *EthernetHeader) SetCFI(v uint8) {
	h.setTCI(h.tci()&^0x1000 | uint16(v&0x1)<<12)
}

// SetVID writes the 12-bit VLAN identifier.
func (h *EthernetHeader) SetVID(v uint16) {
	h.setTCI(h.tci()&^0x0fff | v&0x0fff)
}

// ValidateEthernetHeader reports whether b starts with an 802.1Q tagged
// AVTP Ethernet header. Only the TPID and EtherType are inspected.
func ValidateEthernetHeader(b []byte) error {
	if len(b) < EthernetHeaderLen {
		return ErrPacketTooShort
	}
	if b[12] != 0x81 || b[13] != 0x00 || b[16] != 0x22 || b[17] != 0xf0 {
		return ErrInvalidEthernetHeader
	}
	return nil
}
