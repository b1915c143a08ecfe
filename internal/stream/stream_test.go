package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/avbstream/internal/avb"
	"firestige.xyz/avbstream/internal/avb/mpegts"
	"firestige.xyz/avbstream/internal/avb/pcm"
	"firestige.xyz/avbstream/internal/clock"
	"firestige.xyz/avbstream/internal/core"
	"firestige.xyz/avbstream/internal/transport"
	"firestige.xyz/avbstream/pkg/wire"
)

// loopConn hands written frames back to readers.
type loopConn struct {
	mu     sync.Mutex
	frames [][]byte
	eof    bool
}

func (c *loopConn) ReadFrame() ([]byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return f, nil
	}
	eof := c.eof
	c.mu.Unlock()
	if eof {
		return nil, io.EOF
	}
	time.Sleep(time.Millisecond)
	return nil, transport.ErrPollTimeout
}

func (c *loopConn) WriteFrame(frame []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return len(frame), nil
}

func (c *loopConn) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
}

func (c *loopConn) Interface() string { return "avb0" }
func (c *loopConn) Close() error      { return nil }

func (c *loopConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func dialer(c *loopConn) func(transport.Config) (transport.Conn, error) {
	return func(transport.Config) (transport.Conn, error) { return c, nil }
}

var stereo16 = pcm.Format{Rate: 48000, Channels: 2, Width: 16}

func TestPCMStamper(t *testing.T) {
	s := NewPCMStamper(stereo16)
	assert.Equal(t, 4, s.Align())

	pts, dur := s.Stamp(make([]byte, 4096))
	assert.Equal(t, core.ClockTime(0), pts)
	assert.Equal(t, core.ClockTime(21333333), dur)

	pts, dur = s.Stamp(make([]byte, 4096))
	assert.Equal(t, core.ClockTime(21333333), pts)
	assert.Equal(t, core.ClockTime(21333333), dur)

	pts, _ = s.Stamp(make([]byte, 192000-8192))
	assert.Equal(t, core.ClockTime(42666666), pts)
	pts, _ = s.Stamp(nil)
	assert.Equal(t, core.Second, pts)
}

// pcrPacket builds a TS packet carrying a PCR of t (a multiple of 1/90000 s).
func pcrPacket(t core.ClockTime) []byte {
	pkt := make([]byte, mpegts.PacketSize)
	pkt[0] = 0x47
	pkt[3] = 0x30
	pkt[4] = 7
	pkt[5] = 0x10
	base := uint64(t) * 9 / 100000
	binary.BigEndian.PutUint32(pkt[6:10], uint32(base>>1))
	pkt[10] = byte(base&1) << 7
	return pkt
}

func TestPCRStamper(t *testing.T) {
	s := NewPCRStamper()
	assert.Equal(t, mpegts.PacketSize, s.Align())
	plain := make([]byte, mpegts.PacketSize)
	plain[0] = 0x47

	chunk := func(pkts ...[]byte) []byte { return bytes.Join(pkts, nil) }

	pts, _ := s.Stamp(chunk(plain, plain))
	assert.Equal(t, core.ClockTime(0), pts)

	pts, _ = s.Stamp(chunk(plain, pcrPacket(10*core.Second), pcrPacket(99*core.Second)))
	assert.Equal(t, core.ClockTime(0), pts)

	pts, _ = s.Stamp(chunk(pcrPacket(10*core.Second + 500*core.Millisecond)))
	assert.Equal(t, 500*core.Millisecond, pts)

	pts, _ = s.Stamp(chunk(plain))
	assert.Equal(t, 500*core.Millisecond, pts)

	// backwards PCR restarts the reference without moving the time
	pts, _ = s.Stamp(chunk(pcrPacket(core.Second)))
	assert.Equal(t, 500*core.Millisecond, pts)
	pts, _ = s.Stamp(chunk(pcrPacket(2 * core.Second)))
	assert.Equal(t, 1500*core.Millisecond, pts)
}

func TestAlignChunk(t *testing.T) {
	tests := []struct {
		size, align, want int
	}{
		{0, 4, DefaultChunkSize},
		{4096, 4, 4096},
		{4096, 6, 4092},
		{4096, 188, 21 * 188},
		{100, 188, 188},
		{-5, 1, DefaultChunkSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignChunk(tt.size, tt.align), "size=%d align=%d", tt.size, tt.align)
	}
}

func newPCMTalker(t *testing.T, conn *loopConn, cfg TalkerConfig) *Talker {
	t.Helper()
	p, err := pcm.NewPayloader(stereo16)
	require.NoError(t, err)
	return NewTalker(cfg, p, NewPCMStamper(stereo16), avb.WithSinkDialer(dialer(conn)))
}

func TestTalkerRunPCM(t *testing.T) {
	conn := &loopConn{}
	cfg := TalkerConfig{
		Sink:      avb.SinkConfig{Latency: avb.LatencyAuto},
		ChunkSize: 4096,
		Live:      true,
	}
	talker := newPCMTalker(t, conn, cfg)
	require.NotEmpty(t, talker.ID())

	input := make([]byte, 4096+256)
	for i := range input {
		input[i] = byte(i)
	}
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(input)))

	frames := conn.sent()
	// 8 full frames for the first chunk, one 512 byte frame for the tail
	require.Len(t, frames, 9)
	assert.Equal(t, avb.LatencyLive, talker.Sink().Latency())

	first, err := wire.ParseFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, avb.Low32(avb.LatencyLive), first.AVTPDU.AVTPTimestamp())

	tail, err := wire.ParseFrame(frames[8])
	require.NoError(t, err)
	assert.Len(t, tail.Payload, 512)
	assert.Equal(t, avb.Low32(avb.LatencyLive+8*2666666), tail.AVTPDU.AVTPTimestamp())

	status := talker.Status()
	assert.Equal(t, "talker", status["role"])
	assert.Equal(t, uint64(2), status["chunks"])
	assert.Equal(t, uint64(9), status["stats"].(avb.SinkStats).Frames)
}

func TestTalkerNotLiveLatency(t *testing.T) {
	conn := &loopConn{}
	talker := newPCMTalker(t, conn, TalkerConfig{Sink: avb.SinkConfig{Latency: avb.LatencyAuto}})
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(make([]byte, 64))))
	assert.Equal(t, avb.LatencyLocal, talker.Sink().Latency())
	assert.Equal(t, DefaultChunkSize, talker.ChunkSize())
}

func TestTalkerSyncPacing(t *testing.T) {
	conn := &loopConn{}
	talker := newPCMTalker(t, conn, TalkerConfig{Sink: avb.SinkConfig{Latency: 0}, ChunkSize: 19200, Sync: true})
	var waits []time.Duration
	talker.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	// 100 ms chunks; the first is due immediately
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(make([]byte, 3*19200))))
	require.Len(t, waits, 2)
	assert.InDelta(t, float64(100*time.Millisecond), float64(waits[0]), float64(50*time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(waits[1]), float64(50*time.Millisecond))
}

func TestTalkerStopsOnCancel(t *testing.T) {
	conn := &loopConn{}
	talker := newPCMTalker(t, conn, TalkerConfig{Sink: avb.SinkConfig{Latency: 0}, Sync: true})

	ctx, cancel := context.WithCancel(context.Background())
	talker.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	assert.NoError(t, talker.Run(ctx, bytes.NewReader(make([]byte, 3*DefaultChunkSize))))
	assert.Equal(t, uint64(1), talker.chunks.Load())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestTalkerErrors(t *testing.T) {
	p, err := pcm.NewPayloader(stereo16)
	require.NoError(t, err)
	talker := NewTalker(TalkerConfig{}, p, NewPCMStamper(stereo16),
		avb.WithSinkDialer(func(transport.Config) (transport.Conn, error) {
			return nil, transport.ErrNoInterface
		}))
	assert.ErrorIs(t, talker.Run(context.Background(), bytes.NewReader(nil)), core.ErrOpen)

	talker = newPCMTalker(t, &loopConn{}, TalkerConfig{})
	err = talker.Run(context.Background(), failingReader{})
	assert.ErrorContains(t, err, "device gone")
}

type stepClock struct{ now core.ClockTime }

func (c stepClock) Now() (core.ClockTime, error) { return c.now, nil }

func TestListenerRoundTrip(t *testing.T) {
	conn := &loopConn{}
	talker := newPCMTalker(t, conn, TalkerConfig{Sink: avb.SinkConfig{Latency: core.Millisecond}})
	input := make([]byte, 8192)
	for i := range input {
		input[i] = byte(i * 3)
	}
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(input)))

	conn.mu.Lock()
	conn.eof = true
	conn.mu.Unlock()

	var out bytes.Buffer
	l := NewListener(ListenerConfig{Clock: stepClock{now: 5 * core.Second}}, pcm.NewDepayloader(), &out,
		avb.WithSourceDialer(dialer(conn)))
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, "audio/x-raw, format=(string)S16LE, rate=(int)48000, channels=(int)2", l.Caps())
	assert.Equal(t, 5*core.Second, l.Source().BaseTime())

	status := l.Status()
	assert.Equal(t, "listener", status["role"])
	assert.Equal(t, uint64(16), status["buffers"])
	assert.Equal(t, uint64(len(input)), status["bytes"])
	assert.Equal(t, uint64(16), status["stats"].(avb.SourceStats).Frames)
}

func TestListenerMPEGTS(t *testing.T) {
	conn := &loopConn{}
	talker := NewTalker(TalkerConfig{Sink: avb.SinkConfig{Latency: core.Millisecond}, ChunkSize: 2 * mpegts.PacketSize},
		mpegts.NewPayloader(), NewPCRStamper(), avb.WithSinkDialer(dialer(conn)))
	input := bytes.Join([][]byte{
		pcrPacket(core.Second), pcrPacket(core.Second),
		pcrPacket(core.Second + 40*core.Millisecond), pcrPacket(core.Second),
	}, nil)
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(input)))
	conn.eof = true

	var out bytes.Buffer
	l := NewListener(ListenerConfig{Clock: stepClock{now: 3 * core.Second}}, mpegts.NewDepayloader(), &out,
		avb.WithSourceDialer(dialer(conn)))
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, "video/mpegts, systemstream=(boolean)true, packetsize=(int)188", l.Caps())
}

func TestListenerStopsOnCancel(t *testing.T) {
	l := NewListener(ListenerConfig{}, pcm.NewDepayloader(), io.Discard,
		avb.WithSourceDialer(dialer(&loopConn{})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerClockFailure(t *testing.T) {
	broken := clock.Func(func() (core.ClockTime, error) { return core.ClockTimeNone, clock.ErrUnavailable })
	l := NewListener(ListenerConfig{Clock: broken}, pcm.NewDepayloader(), io.Discard,
		avb.WithSourceDialer(dialer(&loopConn{})))
	err := l.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrOpen)
	assert.ErrorIs(t, err, clock.ErrUnavailable)
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestListenerWriteFailure(t *testing.T) {
	conn := &loopConn{}
	talker := newPCMTalker(t, conn, TalkerConfig{Sink: avb.SinkConfig{Latency: 0}})
	require.NoError(t, talker.Run(context.Background(), bytes.NewReader(make([]byte, 64))))

	l := NewListener(ListenerConfig{}, pcm.NewDepayloader(), errWriter{}, avb.WithSourceDialer(dialer(conn)))
	assert.ErrorContains(t, l.Run(context.Background()), "disk full")
}
