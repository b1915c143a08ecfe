package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/avbstream/internal/avb/mpegts"
	"firestige.xyz/avbstream/pkg/wire"
)

// InspectSummary counts what Inspect saw in a capture.
type InspectSummary struct {
	Packets         int `json:"packets"`
	Frames          int `json:"frames"`
	Discontinuities int `json:"discontinuities"`
	DecodeErrors    int `json:"decode_errors"`
}

// Inspect decodes a pcap stream and writes one line per AVTP frame to w.
// Non-AVTP packets are counted but not printed.
func Inspect(r io.Reader, w io.Writer) (InspectSummary, error) {
	var sum InspectSummary
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return sum, fmt.Errorf("open capture: %w", err)
	}

	src := gopacket.NewPacketSource(reader, reader.LinkType())
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	lastSeq := make(map[uint64]uint8)
	for {
		pkt, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read capture: %w", err)
		}
		sum.Packets++

		if pkt.ErrorLayer() != nil {
			sum.DecodeErrors++
			continue
		}
		al := pkt.Layer(wire.LayerTypeAVTP)
		if al == nil {
			continue
		}
		avtp := &al.(*wire.AVTP).Header
		sum.Frames++

		id := avtp.StreamID()
		seq := avtp.SequenceNum()
		if last, ok := lastSeq[id]; ok && last+1 != seq {
			sum.Discontinuities++
			fmt.Fprintf(w, "# discont stream=%016x last=%d seq=%d\n", id, last, seq)
		}
		lastSeq[id] = seq

		line := fmt.Sprintf("%s stream=%016x seq=%d sdl=%d", pkt.Metadata().Timestamp.Format("15:04:05.000000"),
			id, seq, avtp.StreamDataLength())
		if avtp.TV() != 0 {
			line += fmt.Sprintf(" ts=%d", avtp.AVTPTimestamp())
		}

		if cl := pkt.Layer(wire.LayerTypeCIP); cl != nil {
			cip := cl.(*wire.CIP)
			h := &cip.Header
			line += fmt.Sprintf(" fmt=%#x fdf=%#x dbs=%d dbc=%d syt=%#04x", h.FMT(), h.FDF(), h.DBS(), h.DBC(), h.SYT())
			if h.FMT() == wire.FMTMPEGTS {
				line += describeTS(cip.Payload)
			}
		}
		fmt.Fprintln(w, line)
	}
}

// describeTS summarizes the sub-timestamp and the clock references of the
// TS packets behind it.
func describeTS(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	s := fmt.Sprintf(" sub_ts=%d", binary.BigEndian.Uint32(payload))
	ts := payload[4:]
	for off := 0; off+mpegts.PacketSize <= len(ts); off += mpegts.PacketSize {
		pkt := ts[off : off+mpegts.PacketSize]
		if pcr, ok := mpegts.PCR(pkt); ok {
			s += fmt.Sprintf(" pcr=%s", pcr)
		}
		if pts, dts, ok := mpegts.PESTimestamps(pkt); ok {
			s += fmt.Sprintf(" pts=%s", pts)
			if dts.IsValid() {
				s += fmt.Sprintf(" dts=%s", dts)
			}
		}
	}
	return s
}
