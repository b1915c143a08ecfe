package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/log"
)

// DefaultChunkSize is the input read size when none is configured.
const DefaultChunkSize = 4096

// TalkerConfig configures a Talker.
type TalkerConfig struct {
	Sink      avb.SinkConfig
	ChunkSize int
	// Sync paces rendering to the wall clock by chunk presentation time.
	Sync bool
	// Live marks the input as a live capture for automatic latency.
	Live bool
}

// Talker reads media from an io.Reader and renders it through an AVB sink.
type Talker struct {
	id        uuid.UUID
	sink      *avb.Sink
	stamper   Stamper
	chunkSize int
	sync      bool
	live      bool
	sleep     func(context.Context, time.Duration) error
	logger    log.Logger

	chunks atomic.Uint64
}

// NewTalker builds a talker and its sink. opts are passed to the sink.
func NewTalker(cfg TalkerConfig, p avb.Payloader, s Stamper, opts ...avb.SinkOption) *Talker {
	t := &Talker{
		id:      uuid.Must(uuid.NewV4()),
		stamper: s,
		sync:    cfg.Sync,
		live:    cfg.Live,
		sleep:   sleepCtx,
	}
	t.chunkSize = alignChunk(cfg.ChunkSize, s.Align())

	opts = append([]avb.SinkOption{avb.WithLatencyQuerier(avb.LatencyQuerierFunc(t.IsLive))}, opts...)
	t.sink = avb.NewSink(cfg.Sink, p, opts...)
	t.logger = log.Component("stream").WithFields(map[string]interface{}{
		"session": t.id.String(),
		"role":    "talker",
		"format":  p.Name(),
	})
	return t
}

func alignChunk(size, align int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if align <= 1 {
		return size
	}
	if size < align {
		return align
	}
	return size - size%align
}

// ID is the session id attached to the talker's logs and status.
func (t *Talker) ID() string { return t.id.String() }

// Sink exposes the engine for property changes while running.
func (t *Talker) Sink() *avb.Sink { return t.sink }

// IsLive answers the sink's latency query.
func (t *Talker) IsLive() bool { return t.live }

// ChunkSize is the effective read size after alignment.
func (t *Talker) ChunkSize() int { return t.chunkSize }

// Run opens the sink and renders r chunk by chunk until r is exhausted or
// ctx is cancelled. A trailing partial chunk is rendered. The sink is
// closed on return.
func (t *Talker) Run(ctx context.Context, r io.Reader) error {
	if err := t.sink.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := t.sink.Close(); cerr != nil {
			t.logger.WithError(cerr).Warn("close sink")
		}
	}()

	t.logger.WithFields(map[string]interface{}{
		"iface":      t.sink.Interface(),
		"chunk_size": t.chunkSize,
		"sync":       t.sync,
		"live":       t.live,
	}).Info("talker started")

	chunk := make([]byte, t.chunkSize)
	start := time.Now()
	for {
		if ctx.Err() != nil {
			t.logger.Info("talker stopped")
			return nil
		}

		n, rerr := io.ReadFull(r, chunk)
		if n > 0 {
			if err := t.render(ctx, chunk[:n], start); err != nil {
				if ctx.Err() != nil {
					t.logger.Info("talker stopped")
					return nil
				}
				return err
			}
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			t.logger.WithField("chunks", t.chunks.Load()).Info("input finished")
			return nil
		default:
			return fmt.Errorf("read input: %w", rerr)
		}
	}
}

func (t *Talker) render(ctx context.Context, data []byte, start time.Time) error {
	pts, dur := t.stamper.Stamp(data)
	if t.sync && pts.IsValid() {
		if wait := time.Until(start.Add(pts.Duration())); wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	buf := core.NewBuffer(data)
	buf.PTS = pts
	buf.Duration = dur
	if err := t.sink.Render(buf); err != nil {
		return err
	}
	t.chunks.Add(1)
	return nil
}

// Status reports the talker state for the status endpoint.
func (t *Talker) Status() map[string]any {
	return map[string]any{
		"session":       t.id.String(),
		"role":          "talker",
		"interface":     t.sink.Interface(),
		"latency":       latencyString(t.sink.Latency()),
		"package_count": t.sink.PackageCount(),
		"chunks":        t.chunks.Load(),
		"stats":         t.sink.Stats(),
	}
}

func latencyString(l core.ClockTime) string {
	if l == avb.LatencyAuto {
		return "auto"
	}
	return l.Duration().String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
