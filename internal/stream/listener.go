package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Source avb.SourceConfig
	// Clock is the pipeline clock. Nil uses the system clock.
	Clock clock.Clock
}

// Listener drains an AVB source into an io.Writer. It is the source's
// observer and logs its notifications.
type Listener struct {
	id     uuid.UUID
	src    *avb.Source
	clock  clock.Clock
	w      io.Writer
	logger log.Logger

	buffers atomic.Uint64
	bytes   atomic.Uint64

	mu    sync.Mutex
	caps  string
	start core.ClockTime
}

// NewListener builds a listener and its source. opts are passed to the source.
func NewListener(cfg ListenerConfig, d avb.Depayloader, w io.Writer, opts ...avb.SourceOption) *Listener {
	l := &Listener{
		id:    uuid.Must(uuid.NewV4()),
		clock: cfg.Clock,
		w:     w,
		start: core.ClockTimeNone,
	}
	if l.clock == nil {
		l.clock = clock.SystemClock{}
	}
	name := "unknown"
	if d != nil {
		name = d.Name()
	}
	l.logger = log.Component("stream").WithFields(map[string]interface{}{
		"session": l.id.String(),
		"role":    "listener",
		"format":  name,
	})

	opts = append([]avb.SourceOption{avb.WithPipelineClock(l.clock), avb.WithObserver(l)}, opts...)
	l.src = avb.NewSource(cfg.Source, d, opts...)
	return l
}

// ID is the session id attached to the listener's logs and status.
func (l *Listener) ID() string { return l.id.String() }

// Source exposes the engine.
func (l *Listener) Source() *avb.Source { return l.src }

// Run opens the source, sets its base time from the pipeline clock and
// writes every output buffer to w. It returns nil when ctx is cancelled or
// a replayed capture ends.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.src.Open(); err != nil {
		return err
	}
	defer func() {
		if err := l.src.Close(); err != nil {
			l.logger.WithError(err).Warn("close source")
		}
	}()

	base, err := l.clock.Now()
	if err != nil {
		return fmt.Errorf("%w: read pipeline clock: %w", core.ErrOpen, err)
	}
	l.src.SetBaseTime(base)

	stop := context.AfterFunc(ctx, l.src.Unlock)
	defer stop()

	l.logger.WithFields(map[string]interface{}{
		"iface":     l.src.Interface(),
		"base_time": base.String(),
	}).Info("listener started")

	for {
		buf, err := l.src.Create(ctx)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrFlushing):
			l.logger.Info("listener stopped")
			return nil
		case errors.Is(err, io.EOF):
			l.logger.WithField("buffers", l.buffers.Load()).Info("capture replay finished")
			return nil
		default:
			return err
		}

		if buf.Discont {
			l.logger.WithField("pts", buf.PTS.String()).Warn("discontinuity")
		}
		n, err := l.w.Write(buf.Data)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		l.buffers.Add(1)
		l.bytes.Add(uint64(n))
	}
}

func (l *Listener) Timeout(d time.Duration) {
	l.logger.WithField("timeout", d.String()).Warn("no avb stream received")
}

func (l *Listener) CapsChanged(caps *core.Caps) {
	l.mu.Lock()
	l.caps = caps.String()
	l.mu.Unlock()
	l.logger.WithField("caps", caps.String()).Info("stream format")
}

func (l *Listener) NewSegment(start core.ClockTime) {
	l.mu.Lock()
	l.start = start
	l.mu.Unlock()
	l.logger.WithField("start", start.String()).Debug("new segment")
}

// Caps is the negotiated format, empty before the first frame.
func (l *Listener) Caps() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.caps
}

// Status reports the listener state for the status endpoint.
func (l *Listener) Status() map[string]any {
	l.mu.Lock()
	caps, start := l.caps, l.start
	l.mu.Unlock()
	return map[string]any{
		"session":       l.id.String(),
		"role":          "listener",
		"interface":     l.src.Interface(),
		"caps":          caps,
		"segment_start": start.String(),
		"buffers":       l.buffers.Load(),
		"bytes":         l.bytes.Load(),
		"stats":         l.src.Stats(),
	}
}
