// Package stream drives the AVB engines from byte streams: a Talker feeds
// an io.Reader into a sink and a Listener drains a source into an io.Writer.
package stream

import (
	"firestige.xyz/avbstream/internal/avb/mpegts"
	"firestige.xyz/avbstream/internal/avb/pcm"
	"firestige.xyz/avbstream/internal/core"
)

// Stamper assigns presentation times to consecutive input chunks.
type Stamper interface {
	// Align is the unit chunk sizes are rounded down to.
	Align() int
	Stamp(chunk []byte) (pts, duration core.ClockTime)
}

// PCMStamper times raw audio by its byte offset.
type PCMStamper struct {
	frameSize      int
	bytesPerSecond uint64
	offset         uint64
}

func NewPCMStamper(f pcm.Format) *PCMStamper {
	return &PCMStamper{
		frameSize:      f.Channels * f.Width / 8,
		bytesPerSecond: uint64(f.BytesPerSecond()),
	}
}

func (s *PCMStamper) Align() int { return s.frameSize }

func (s *PCMStamper) Stamp(chunk []byte) (core.ClockTime, core.ClockTime) {
	pts := s.at(s.offset)
	s.offset += uint64(len(chunk))
	return pts, s.at(s.offset) - pts
}

func (s *PCMStamper) at(offset uint64) core.ClockTime {
	return core.ClockTime(offset * uint64(core.Second) / s.bytesPerSecond)
}

// PCRStamper times a transport stream by the PCR advance since the start
// of the stream. Only the first PCR in a chunk is read; chunks without one
// repeat the last time. A PCR stepping backwards is a discontinuity and
// does not move the time.
type PCRStamper struct {
	prev core.ClockTime
	last core.ClockTime
}

func NewPCRStamper() *PCRStamper {
	return &PCRStamper{prev: core.ClockTimeNone}
}

func (s *PCRStamper) Align() int { return mpegts.PacketSize }

func (s *PCRStamper) Stamp(chunk []byte) (core.ClockTime, core.ClockTime) {
	for off := 0; off+mpegts.PacketSize <= len(chunk); off += mpegts.PacketSize {
		pcr, ok := mpegts.PCR(chunk[off : off+mpegts.PacketSize])
		if !ok {
			continue
		}
		if s.prev.IsValid() && pcr >= s.prev {
			s.last += pcr - s.prev
		}
		s.prev = pcr
		break
	}
	return s.last, core.ClockTimeNone
}
