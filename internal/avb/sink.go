package avb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/internal/metrics"
	"firestige.xyz/avbstream/internal/transport"
	"firestige.xyz/avbstream/pkg/wire"
)

const (
	// LatencyAuto lets the sink choose its presentation offset from the host's liveness.
	LatencyAuto = core.ClockTimeNone

	LatencyLive  = 100 * core.Millisecond
	LatencyLocal = 1500 * core.Millisecond
)

// 802.1Q priorities of the stream classes.
const (
	pcpAudio = 3
	pcpVideo = 7
)

// SinkConfig holds the talker settings fixed at construction.
type SinkConfig struct {
	Interface   string
	CaptureFile string
	PTPDevice   string
	PollTimeout time.Duration

	Latency      core.ClockTime // LatencyAuto or a fixed offset
	UsePTPTime   bool
	PackageCount int // 0 = payloader default
}

// DefaultSinkConfig returns the property defaults.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Latency:    LatencyAuto,
		UsePTPTime: true,
	}
}

// LatencyQuerier reports whether the host pipeline runs against a live source.
type LatencyQuerier interface {
	IsLive() bool
}

// LatencyQuerierFunc adapts a function to LatencyQuerier.
type LatencyQuerierFunc func() bool

func (f LatencyQuerierFunc) IsLive() bool { return f() }

// PTPSource is a closable network time source.
type PTPSource interface {
	clock.Clock
	Close() error
}

// SinkOption customizes a Sink.
type SinkOption func(*Sink)

// WithSinkDialer replaces the raw socket dialer.
func WithSinkDialer(dial func(transport.Config) (transport.Conn, error)) SinkOption {
	return func(s *Sink) { s.dial = dial }
}

// WithPTPOpener replaces how the sink opens its PTP time source.
func WithPTPOpener(open func(clock.PTPConfig) (PTPSource, error)) SinkOption {
	return func(s *Sink) { s.openPTP = open }
}

// WithLatencyQuerier sets the host queried when the latency is LatencyAuto.
func WithLatencyQuerier(q LatencyQuerier) SinkOption {
	return func(s *Sink) { s.querier = q }
}

// SinkStats is a snapshot of talker counters.
type SinkStats struct {
	Frames     uint64 `json:"frames"`
	Bytes      uint64 `json:"bytes"`
	SendErrors uint64 `json:"send_errors"`
}

// Sink is the talker engine. It splits host buffers into AVTP frames and
// writes them to a raw Ethernet socket. Open, Render and Close are called
// from one goroutine; the property accessors may be called from any.
type Sink struct {
	cfg       SinkConfig
	payloader Payloader
	rewriter  TimeRewriter
	dial      func(transport.Config) (transport.Conn, error)
	openPTP   func(clock.PTPConfig) (PTPSource, error)
	querier   LatencyQuerier
	logger    log.Logger

	mu           sync.Mutex
	latency      core.ClockTime
	usePTPTime   bool
	packageCount int
	stats        SinkStats
	iface        string

	conn     transport.Conn
	ptp      PTPSource
	header   *wire.Header
	format   StreamFormat
	prepared bool

	ts             core.ClockTime
	startTS        core.ClockTime
	sequenceNum    uint8
	dataBlockCount uint8
	arena          []byte

	framesSent prometheus.Counter
	bytesSent  prometheus.Counter
	sendErrors prometheus.Counter
}

// NewSink creates a closed talker for the payloader's stream format.
func NewSink(cfg SinkConfig, p Payloader, opts ...SinkOption) *Sink {
	s := &Sink{
		cfg:          cfg,
		payloader:    p,
		dial:         transport.Dial,
		openPTP:      openPTP,
		latency:      cfg.Latency,
		usePTPTime:   cfg.UsePTPTime,
		packageCount: cfg.PackageCount,
	}
	if rw, ok := p.(TimeRewriter); ok {
		s.rewriter = rw
	}
	if s.packageCount <= 0 {
		s.packageCount = p.DefaultPackageCount()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Component("avb-sink").WithField("format", p.Name())
	return s
}

func openPTP(cfg clock.PTPConfig) (PTPSource, error) {
	c, err := clock.OpenPTP(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Latency returns the presentation offset, LatencyAuto until resolved.
func (s *Sink) Latency() core.ClockTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

func (s *Sink) SetLatency(l core.ClockTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = l
}

func (s *Sink) UsePTPTime() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usePTPTime
}

func (s *Sink) SetUsePTPTime(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usePTPTime = v
}

func (s *Sink) PackageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packageCount
}

// SetPackageCount bounds the packets coalesced into one frame. Values below 1 are clamped to 1.
func (s *Sink) SetPackageCount(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packageCount = n
}

// Stats returns the talker counters.
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Interface is the bound interface name, empty while closed.
func (s *Sink) Interface() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iface
}

// Open binds the raw socket and builds the header template.
func (s *Sink) Open() error {
	if s.conn != nil {
		return fmt.Errorf("%w: sink already open", core.ErrOpen)
	}

	drop, err := transport.DropAllFilter()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}
	conn, err := s.dial(transport.Config{
		Interface:   s.cfg.Interface,
		PollTimeout: s.cfg.PollTimeout,
		Filter:      drop,
		CaptureFile: s.cfg.CaptureFile,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}

	mac := conn.HardwareAddr()
	if len(mac) != 6 {
		conn.Close()
		return fmt.Errorf("%w: %s has no ethernet address", core.ErrOpen, conn.Interface())
	}

	if s.UsePTPTime() {
		ptp, err := s.openPTP(clock.PTPConfig{Interface: conn.Interface(), Device: s.cfg.PTPDevice})
		if err != nil {
			s.logger.WithError(err).Warn("ptp time unavailable, falling back to buffer timestamps")
		} else {
			s.ptp = ptp
		}
	}

	h := new(wire.Header)
	wire.InitHeader(h)
	h.Ethernet().SetSA(mac)
	if s.payloader.StreamFormat().FMT == wire.FMTAudio {
		h.Ethernet().SetPCP(pcpAudio)
	} else {
		h.Ethernet().SetPCP(pcpVideo)
	}
	h.AVTPDU().SetSV(1)
	h.AVTPDU().SetStreamID(mac)

	s.conn = conn
	s.header = h
	s.prepared = false
	s.ts = core.ClockTimeNone
	s.startTS = core.ClockTimeNone
	s.sequenceNum = 0
	s.dataBlockCount = 0

	iface := conn.Interface()
	s.mu.Lock()
	s.iface = iface
	s.mu.Unlock()
	s.framesSent = metrics.TalkerFramesTotal.WithLabelValues(iface, s.payloader.Name())
	s.bytesSent = metrics.TalkerBytesTotal.WithLabelValues(iface, s.payloader.Name())
	s.sendErrors = metrics.TalkerSendErrorsTotal.WithLabelValues(iface, s.payloader.Name())

	s.logger.WithFields(map[string]interface{}{"iface": iface, "mac": mac.String()}).Info("avb sink opened")
	return nil
}

// prepare copies the stream format into the CIP template and resolves an
// automatic latency.
func (s *Sink) prepare() error {
	f := s.payloader.StreamFormat()
	if f.DBS == 0 {
		return fmt.Errorf("%w: data block size is 0", core.ErrNotNegotiated)
	}
	f.Apply(s.header.CIP())
	s.format = f

	s.mu.Lock()
	if s.latency == LatencyAuto {
		live := s.querier != nil && s.querier.IsLive()
		if live {
			s.latency = LatencyLive
		} else {
			s.latency = LatencyLocal
		}
	}
	latency := s.latency
	s.mu.Unlock()

	s.prepared = true
	s.logger.WithFields(map[string]interface{}{
		"fmt":     fmt.Sprintf("%#x", f.FMT),
		"fdf":     fmt.Sprintf("%#x", f.FDF),
		"latency": latency.Duration().String(),
	}).Debug("avb sink prepared")
	return nil
}

// Render sends buf as a run of AVTP frames. A failed send aborts the rest
// of the buffer with ErrFlow and leaves the socket open.
func (s *Sink) Render(buf core.Buffer) error {
	if s.conn == nil {
		return core.ErrNotOpen
	}
	if !s.prepared {
		if err := s.prepare(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	latency := s.latency
	usePTP := s.usePTPTime
	packageCount := s.packageCount
	s.mu.Unlock()

	pts := buf.PTS
	if !pts.IsValid() {
		pts = 0
		if s.startTS.IsValid() {
			pts = s.startTS
		}
	}

	if !s.ts.IsValid() {
		s.ts = pts + latency
		if usePTP && s.ptp != nil {
			if now, err := s.ptp.Now(); err == nil && now.IsValid() {
				s.ts = now + latency
			} else {
				s.logger.WithError(err).Debug("ptp read failed, using buffer timestamp")
			}
		}
		s.startTS = pts
	}

	data := buf.Data
	consumed := 0
	for consumed < len(data) {
		payloadLen := s.payloader.PacketLen(len(data)-consumed, packageCount)
		pkt := s.packet(payloadLen)
		avtp := wire.AsAVTPDUHeader(pkt[wire.EthernetHeaderLen:])
		cip := wire.AsCIPHeader(pkt[wire.EthernetHeaderLen+wire.AVTPDUHeaderLen:])
		payload := pkt[wire.HeaderLen:]

		avtp.SetSequenceNum(s.sequenceNum)
		s.sequenceNum++
		avtp.SetStreamDataLength(uint16(payloadLen + wire.CIPHeaderLen))

		cip.SetDBC(s.dataBlockCount)
		s.dataBlockCount += s.payloader.DataBlocks(payloadLen)

		n, dur := s.payloader.Pack(payload, data[consumed:])
		if n <= 0 {
			return fmt.Errorf("%w: payloader consumed no input", core.ErrFlow)
		}
		consumed += n

		switch s.format.SPH {
		case 0:
			avtp.SetTV(1)
			avtp.SetAVTPTimestamp(Low32(s.ts))
			s.ts += dur
		case 1:
			ptpTS := s.ts + pts - s.startTS
			if s.rewriter != nil {
				s.rewriter.RewriteTime(payload, ptpTS, pts)
			}
		}

		if err := s.send(pkt); err != nil {
			return err
		}
	}
	return nil
}

// packet returns a zeroed slice of the arena holding the header template
// and room for payloadLen bytes.
func (s *Sink) packet(payloadLen int) []byte {
	size := wire.HeaderLen + payloadLen
	if cap(s.arena) < size {
		s.arena = make([]byte, size)
	}
	pkt := s.arena[:size]
	copy(pkt, s.header[:])
	clear(pkt[wire.HeaderLen:])
	return pkt
}

func (s *Sink) send(pkt []byte) error {
	n, err := s.conn.WriteFrame(pkt)
	if err == nil && n != len(pkt) {
		err = fmt.Errorf("%w: sent %d of %d bytes", core.ErrShortWrite, n, len(pkt))
	}
	if err != nil {
		s.sendErrors.Inc()
		s.mu.Lock()
		s.stats.SendErrors++
		s.mu.Unlock()
		s.logger.WithError(err).Errorf("send frame seq=%d failed", wire.AsAVTPDUHeader(pkt[wire.EthernetHeaderLen:]).SequenceNum())
		return fmt.Errorf("%w: %w", core.ErrFlow, err)
	}
	s.framesSent.Inc()
	s.bytesSent.Add(float64(n))
	s.mu.Lock()
	s.stats.Frames++
	s.stats.Bytes += uint64(n)
	s.mu.Unlock()
	return nil
}

// Close releases the socket and the PTP source. The sink may be opened again.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	var errs []error
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ptp != nil {
		if err := s.ptp.Close(); err != nil {
			errs = append(errs, err)
		}
		s.ptp = nil
	}
	s.conn = nil
	s.header = nil
	s.prepared = false
	s.mu.Lock()
	s.iface = ""
	s.mu.Unlock()
	s.logger.Info("avb sink closed")
	return errors.Join(errs...)
}
