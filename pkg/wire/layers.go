package wire

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EthernetTypeAVTP is the gopacket EtherType for IEEE 1722 frames.
const EthernetTypeAVTP layers.EthernetType = EtherTypeAVTP

var (
	LayerTypeAVTP = gopacket.RegisterLayerType(1722, gopacket.LayerTypeMetadata{
		Name:    "AVTP",
		Decoder: gopacket.DecodeFunc(decodeAVTP),
	})
	LayerTypeCIP = gopacket.RegisterLayerType(1883, gopacket.LayerTypeMetadata{
		Name:    "CIP",
		Decoder: gopacket.DecodeFunc(decodeCIP),
	})
)

func init() {
	layers.EthernetTypeMetadata[EthernetTypeAVTP] = layers.EnumMetadata{
		DecodeWith: LayerTypeAVTP,
		Name:       "AVTP",
		LayerType:  LayerTypeAVTP,
	}
}

// AVTP is the gopacket layer for the AVTPDU common stream header.
type AVTP struct {
	layers.BaseLayer
	Header AVTPDUHeader
}

func (a *AVTP) LayerType() gopacket.LayerType  { return LayerTypeAVTP }
func (a *AVTP) CanDecode() gopacket.LayerClass { return LayerTypeAVTP }

// NextLayerType is CIP for 61883 data streams and opaque payload otherwise.
func (a *AVTP) NextLayerType() gopacket.LayerType {
	if a.Header.CD() == CDData && a.Header.Subtype() == Subtype61883IIDC {
		return LayerTypeCIP
	}
	return gopacket.LayerTypePayload
}

func (a *AVTP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < AVTPDUHeaderLen {
		df.SetTruncated()
		return ErrPacketTooShort
	}
	copy(a.Header[:], data)
	end := AVTPDUHeaderLen + int(a.Header.StreamDataLength())
	if end > len(data) {
		df.SetTruncated()
		end = len(data)
	}
	a.BaseLayer = layers.BaseLayer{Contents: data[:AVTPDUHeaderLen], Payload: data[AVTPDUHeaderLen:end]}
	return nil
}

// SerializeTo writes the header. With FixLengths the stream data length is
// taken from the bytes already serialized behind it.
func (a *AVTP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	bytes, err := b.PrependBytes(AVTPDUHeaderLen)
	if err != nil {
		return err
	}
	h := a.Header
	if opts.FixLengths {
		h.SetStreamDataLength(uint16(payloadLen))
	}
	copy(bytes, h[:])
	return nil
}

func decodeAVTP(data []byte, p gopacket.PacketBuilder) error {
	a := &AVTP{}
	if err := a.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(a)
	return p.NextDecoder(a.NextLayerType())
}

// CIP is the gopacket layer for the IEC 61883 CIP header.
type CIP struct {
	layers.BaseLayer
	Header CIPHeader
}

func (c *CIP) LayerType() gopacket.LayerType     { return LayerTypeCIP }
func (c *CIP) CanDecode() gopacket.LayerClass    { return LayerTypeCIP }
func (c *CIP) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (c *CIP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < CIPHeaderLen {
		df.SetTruncated()
		return ErrPacketTooShort
	}
	copy(c.Header[:], data)
	c.BaseLayer = layers.BaseLayer{Contents: data[:CIPHeaderLen], Payload: data[CIPHeaderLen:]}
	return nil
}

func (c *CIP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(CIPHeaderLen)
	if err != nil {
		return err
	}
	copy(bytes, c.Header[:])
	return nil
}

func decodeCIP(data []byte, p gopacket.PacketBuilder) error {
	c := &CIP{}
	if err := c.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(c)
	return p.NextDecoder(c.NextLayerType())
}
