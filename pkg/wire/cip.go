package wire

import "encoding/binary"

// CIP defaults per IEC 61883-1.
const (
	DefaultEOH1 = 0
	DefaultSID  = 63
	DefaultDBS  = 6
	DefaultFN   = 0
	DefaultQPC  = 0
	DefaultSPH  = 0
	DefaultRSV  = 0
	DefaultDBC  = 0
	DefaultEOH2 = 2
	DefaultFMT  = 0x00
	DefaultFDF  = 0x00
	DefaultSYT  = 0x0000

	// FMTAudio marks 61883-6 AM824 audio payloads.
	FMTAudio = 0x10
	// FMTMPEGTS marks 61883-4 MPEG transport stream payloads.
	FMTMPEGTS = 0x20
)

// CIPHeader is the two-quadlet common isochronous packet header.
//
//	byte 0  EOH1:2 SID:6
//	byte 1  DBS
//	byte 2  FN:2 QPC:3 SPH:1 RSV:2
//	byte 3  DBC
//	byte 4  EOH2:2 FMT:6
//	byte 5  FDF
//	byte 6  SYT (16 bits)
type CIPHeader [CIPHeaderLen]byte

// InitCIPHeader resets h to the defaults. DBS, FN, SPH, FMT, FDF and SYT
// are rewritten per stream once the payload format is known.
func InitCIPHeader(h *CIPHeader) {
	if h == nil {
		return
	}
	*h = CIPHeader{}
	h.SetEOH1(DefaultEOH1)
	h.SetSID(DefaultSID)
	h.SetDBS(DefaultDBS)
	h.SetFN(DefaultFN)
	h.SetQPC(DefaultQPC)
	h.SetSPH(DefaultSPH)
	h.SetRSV(DefaultRSV)
	h.SetDBC(DefaultDBC)
	h.SetEOH2(DefaultEOH2)
	h.SetFMT(DefaultFMT)
	h.SetFDF(DefaultFDF)
	h.SetSYT(DefaultSYT)
}

// AsCIPHeader views b as a CIP header. b must hold at least CIPHeaderLen bytes.
func AsCIPHeader(b []byte) *CIPHeader {
	return (*CIPHeader)(b[:CIPHeaderLen])
}

func (h *CIPHeader) EOH1() uint8     { return getBits(h[0], 0x3, 6) }
func (h *CIPHeader) SetEOH1(v uint8) { setBits(&h[0], 0x3, 6, v) }
func (h *CIPHeader) SID() uint8      { return getBits(h[0], 0x3f, 0) }
func (h *CIPHeader) SetSID(v uint8)  { setBits(&h[0], 0x3f, 0, v) }
func (h *CIPHeader) DBS() uint8      { return h[1] }
func (h *CIPHeader) SetDBS(v uint8)  { h[1] = v }
func (h *CIPHeader) FN() uint8       { return getBits(h[2], 0x3, 6) }
func (h *CIPHeader) SetFN(v uint8)   { setBits(&h[2], 0x3, 6, v) }
func (h *CIPHeader) QPC() uint8      { return getBits(h[2], 0x7, 3) }
func (h *CIPHeader) SetQPC(v uint8)  { setBits(&h[2], 0x7, 3, v) }
func (h *CIPHeader) SPH() uint8      { return getBits(h[2], 0x1, 2) }
func (h *CIPHeader) SetSPH(v uint8)  { setBits(&h[2], 0x1, 2, v) }
func (h *CIPHeader) RSV() uint8      { return getBits(h[2], 0x3, 0) }
func (h *CIPHeader) SetRSV(v uint8)  { setBits(&h[2], 0x3, 0, v) }
func (h *CIPHeader) DBC() uint8      { return h[3] }
func (h *CIPHeader) SetDBC(v uint8)  { h[3] = v }
func (h *CIPHeader) EOH2() uint8     { return getBits(h[4], 0x3, 6) }
func (h *CIPHeader) SetEOH2(v uint8) { setBits(&h[4], 0x3, 6, v) }
func (h *CIPHeader) FMT() uint8      { return getBits(h[4], 0x3f, 0) }
func (h *CIPHeader) SetFMT(v uint8)  { setBits(&h[4], 0x3f, 0, v) }
func (h *CIPHeader) FDF() uint8      { return h[5] }
func (h *CIPHeader) SetFDF(v uint8)  { h[5] = v }
func (h *CIPHeader) SYT() uint16     { return binary.BigEndian.Uint16(h[6:8]) }
func (h *CIPHeader) SetSYT(v uint16) { binary.BigEndian.PutUint16(h[6:8], v) }
