package avb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/internal/metrics"
	"firestige.xyz/avbstream/internal/transport"
	"firestige.xyz/avbstream/pkg/wire"
)

// DefaultBufferSize is the default receive buffer size in bytes.
const DefaultBufferSize = 4096000

// SourceConfig holds the listener settings.
type SourceConfig struct {
	Interface   string
	CaptureFile string
	PollTimeout time.Duration
	BufferSize  int
	// Timeout is how long Create waits for traffic before notifying the
	// observer. 0 waits forever without notifications.
	Timeout time.Duration
}

// DefaultSourceConfig returns the property defaults.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{BufferSize: DefaultBufferSize}
}

// Observer receives the listener's out-of-band notifications.
type Observer interface {
	// Timeout is called each time Timeout elapses with no accepted frame.
	Timeout(d time.Duration)
	// CapsChanged is called once the output format is known.
	CapsChanged(caps *core.Caps)
	// NewSegment is called before the first output buffer with its PTS.
	NewSegment(start core.ClockTime)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Timeout(time.Duration)     {}
func (NopObserver) CapsChanged(*core.Caps)    {}
func (NopObserver) NewSegment(core.ClockTime) {}

// SourceOption customizes a Source.
type SourceOption func(*Source)

// WithSourceDialer replaces the raw socket dialer.
func WithSourceDialer(dial func(transport.Config) (transport.Conn, error)) SourceOption {
	return func(s *Source) { s.dial = dial }
}

// WithObserver sets the notification receiver.
func WithObserver(o Observer) SourceOption {
	return func(s *Source) { s.observer = o }
}

// WithPipelineClock sets the clock used to rebuild presentation times.
func WithPipelineClock(c clock.Clock) SourceOption {
	return func(s *Source) { s.clock = c }
}

// SourceStats is a snapshot of listener counters.
type SourceStats struct {
	Frames          uint64 `json:"frames"`
	Drops           uint64 `json:"drops"`
	Discontinuities uint64 `json:"discontinuities"`
	Timeouts        uint64 `json:"timeouts"`
}

// Source is the listener engine. Create blocks until a valid frame arrives
// and returns its unpacked payload. Unlock may be called from any goroutine
// to interrupt a blocked Create.
type Source struct {
	cfg         SourceConfig
	depayloader Depayloader
	dial        func(transport.Config) (transport.Conn, error)
	observer    Observer
	clock       clock.Clock
	logger      log.Logger

	flushing atomic.Bool
	baseTime atomic.Uint64

	mu    sync.Mutex
	stats SourceStats
	caps  *core.Caps

	conn            transport.Conn
	lastSequenceNum uint8
	segmentSent     bool

	framesRecv  prometheus.Counter
	discontRecv prometheus.Counter
	timeouts    prometheus.Counter
	offsets     prometheus.Observer
	iface       string
}

// NewSource creates a closed listener.
func NewSource(cfg SourceConfig, d Depayloader, opts ...SourceOption) *Source {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	s := &Source{
		cfg:         cfg,
		depayloader: d,
		dial:        transport.Dial,
		observer:    NopObserver{},
		clock:       clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	name := "unknown"
	if d != nil {
		name = d.Name()
	}
	s.logger = log.Component("avb-source").WithField("format", name)
	return s
}

// SetBaseTime sets the pipeline base time subtracted from clock readings.
func (s *Source) SetBaseTime(t core.ClockTime) {
	s.baseTime.Store(uint64(t))
}

func (s *Source) BaseTime() core.ClockTime {
	return core.ClockTime(s.baseTime.Load())
}

// Caps returns the negotiated format, nil before the first frame.
func (s *Source) Caps() *core.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Stats returns the listener counters.
func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Interface is the bound interface name, empty while closed.
func (s *Source) Interface() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iface
}

// Open binds the listener socket.
func (s *Source) Open() error {
	if s.depayloader == nil {
		return fmt.Errorf("%w: no depayloader", core.ErrOpen)
	}
	if s.conn != nil {
		return fmt.Errorf("%w: source already open", core.ErrOpen)
	}

	filter, err := transport.AVTPFilter()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}
	conn, err := s.dial(transport.Config{
		Interface:   s.cfg.Interface,
		PollTimeout: s.cfg.PollTimeout,
		BufferSize:  s.cfg.BufferSize,
		Filter:      filter,
		CaptureFile: s.cfg.CaptureFile,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}

	s.conn = conn
	s.mu.Lock()
	s.iface = conn.Interface()
	s.mu.Unlock()
	s.lastSequenceNum = 0
	s.segmentSent = false

	name := s.depayloader.Name()
	s.framesRecv = metrics.ListenerFramesTotal.WithLabelValues(s.iface, name)
	s.discontRecv = metrics.ListenerDiscontinuitiesTotal.WithLabelValues(s.iface, name)
	s.timeouts = metrics.ListenerTimeoutsTotal.WithLabelValues(s.iface)
	s.offsets = metrics.PresentationOffsetSeconds.WithLabelValues(s.iface, name)

	s.logger.WithFields(map[string]interface{}{
		"iface":       s.iface,
		"buffer_size": s.cfg.BufferSize,
		"timeout":     s.cfg.Timeout.String(),
	}).Info("avb source opened")
	return nil
}

// Unlock makes a blocked or future Create return ErrFlushing.
func (s *Source) Unlock() {
	s.flushing.Store(true)
}

// UnlockStop clears the flushing state set by Unlock.
func (s *Source) UnlockStop() {
	s.flushing.Store(false)
}

// Create returns the next output buffer. Malformed frames are dropped and
// the wait resumes. A sequence gap marks the returned buffer Discont.
func (s *Source) Create(ctx context.Context) (core.Buffer, error) {
	if s.conn == nil {
		return core.Buffer{}, core.ErrNotOpen
	}

	waitStart := time.Now()
	for {
		if s.flushing.Load() || ctx.Err() != nil {
			return core.Buffer{}, core.ErrFlushing
		}

		raw, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrPollTimeout) {
				if s.cfg.Timeout > 0 && time.Since(waitStart) >= s.cfg.Timeout {
					s.timedOut()
					waitStart = time.Now()
				}
				continue
			}
			return core.Buffer{}, fmt.Errorf("%w: %w", core.ErrFlow, err)
		}

		if len(raw) <= wire.HeaderLen {
			s.drop(metrics.DropShort)
			continue
		}
		if len(raw) > transport.MTU {
			raw = raw[:transport.MTU]
		}

		buf, ok, err := s.handle(raw)
		if err != nil {
			return core.Buffer{}, err
		}
		if !ok {
			continue
		}
		return buf, nil
	}
}

// handle validates and unpacks one frame. ok is false when the frame was dropped.
func (s *Source) handle(raw []byte) (buf core.Buffer, ok bool, err error) {
	if err := wire.ValidateEthernetHeader(raw); err != nil {
		s.drop(metrics.DropEthernet)
		return buf, false, nil
	}
	if err := wire.ValidateAVTPDUHeader(raw[wire.EthernetHeaderLen:]); err != nil {
		s.drop(metrics.DropAVTPDU)
		return buf, false, nil
	}
	avtp := wire.AsAVTPDUHeader(raw[wire.EthernetHeaderLen:])
	cip := wire.AsCIPHeader(raw[wire.EthernetHeaderLen+wire.AVTPDUHeaderLen:])
	if err := s.depayloader.ValidateCIP(cip); err != nil {
		s.drop(metrics.DropCIP)
		return buf, false, nil
	}

	seq := avtp.SequenceNum()
	discont := s.lastSequenceNum+1 != seq
	if discont {
		s.logger.Warnf("discont, last_sequence_num=%d, sequence=%d", s.lastSequenceNum, seq)
	}
	s.lastSequenceNum = seq

	pktSize := int(avtp.StreamDataLength()) - wire.CIPHeaderLen
	if pktSize <= 0 {
		s.drop(metrics.DropEmpty)
		return buf, false, nil
	}
	frame, err := wire.ParseFrame(raw)
	if err != nil {
		s.drop(metrics.DropShort)
		return buf, false, nil
	}

	if s.Caps() == nil {
		caps, err := s.depayloader.ParseCaps(frame)
		if err != nil {
			return buf, false, fmt.Errorf("%w: %w", core.ErrNotNegotiated, err)
		}
		s.mu.Lock()
		s.caps = caps
		s.mu.Unlock()
		s.logger.WithField("caps", caps.String()).Info("caps negotiated")
		s.observer.CapsChanged(caps)
	}

	size := s.depayloader.OutputSize(pktSize)
	if size <= 0 {
		return buf, false, fmt.Errorf("%w: output size 0", core.ErrNotNegotiated)
	}

	buf = core.NewBuffer(make([]byte, size))
	if discont {
		buf.Discont = true
		s.depayloader.ResetTimestamp()
		s.discontRecv.Inc()
	}

	tb := TimeBase{Clock: s.clock, Base: s.BaseTime()}
	if err := s.depayloader.Process(frame, &buf, tb); err != nil {
		return buf, false, fmt.Errorf("%w: %w", core.ErrFlow, err)
	}

	if !s.segmentSent {
		s.observer.NewSegment(buf.PTS)
		s.segmentSent = true
	}

	s.framesRecv.Inc()
	s.mu.Lock()
	s.stats.Frames++
	if discont {
		s.stats.Discontinuities++
	}
	s.mu.Unlock()
	s.observeOffset(buf.PTS, tb)

	if discont {
		s.logger.Debugf("output ts=%s", buf.PTS)
	}
	return buf, true, nil
}

// observeOffset records how far ahead of the running time a buffer is stamped.
func (s *Source) observeOffset(pts core.ClockTime, tb TimeBase) {
	if !pts.IsValid() {
		return
	}
	now, ok := tb.Now()
	if !ok || now < tb.Base {
		return
	}
	running := now - tb.Base
	if pts < running {
		return
	}
	s.offsets.Observe((pts - running).Duration().Seconds())
}

func (s *Source) drop(reason string) {
	metrics.ListenerDropsTotal.WithLabelValues(s.iface, reason).Inc()
	s.mu.Lock()
	s.stats.Drops++
	s.mu.Unlock()
}

func (s *Source) timedOut() {
	s.timeouts.Inc()
	s.mu.Lock()
	s.stats.Timeouts++
	s.mu.Unlock()
	s.logger.WithField("timeout", s.cfg.Timeout.String()).Debug("no avb traffic")
	s.observer.Timeout(s.cfg.Timeout)
}

// Close releases the socket and drops the negotiated caps.
func (s *Source) Close() error {
	if s.conn == nil {
		return nil
	}
	s.depayloader.ResetTimestamp()
	s.mu.Lock()
	s.caps = nil
	s.iface = ""
	s.mu.Unlock()
	err := s.conn.Close()
	s.conn = nil
	s.logger.Info("avb source closed")
	return err
}
