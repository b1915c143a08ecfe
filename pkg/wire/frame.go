package wire

// Frame is a view of a received AVTP frame. The header fields alias the
// underlying buffer.
type Frame struct {
	Ethernet *EthernetHeader
	AVTPDU   *AVTPDUHeader
	CIP      *CIPHeader
	// Payload holds the bytes after the CIP header, bounded by the stream
	// data length announced in the AVTPDU header.
	Payload []byte
}

// ParseFrame views b as Ethernet, AVTPDU and CIP headers followed by a payload.
// No field validation is performed.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, ErrPacketTooShort
	}
	f := Frame{
		Ethernet: (*EthernetHeader)(b[:EthernetHeaderLen]),
		AVTPDU:   AsAVTPDUHeader(b[EthernetHeaderLen:]),
		CIP:      AsCIPHeader(b[EthernetHeaderLen+AVTPDUHeaderLen:]),
	}
	end := EthernetHeaderLen + AVTPDUHeaderLen + int(f.AVTPDU.StreamDataLength())
	if end < HeaderLen {
		end = HeaderLen
	}
	if end > len(b) {
		return Frame{}, ErrPacketTooShort
	}
	f.Payload = b[HeaderLen:end]
	return f, nil
}

// Header is the 50-byte template a talker copies in front of every payload.
type Header [HeaderLen]byte

// InitHeader resets all three headers to their defaults.
func InitHeader(h *Header) {
	InitEthernetHeader(h.Ethernet())
	InitAVTPDUHeader(h.AVTPDU())
	InitCIPHeader(h.CIP())
}

func (h *Header) Ethernet() *EthernetHeader {
	return (*EthernetHeader)(h[:EthernetHeaderLen])
}

func (h *Header) AVTPDU() *AVTPDUHeader {
	return AsAVTPDUHeader(h[EthernetHeaderLen:])
}

func (h *Header) CIP() *CIPHeader {
	return AsCIPHeader(h[EthernetHeaderLen+AVTPDUHeaderLen:])
}
