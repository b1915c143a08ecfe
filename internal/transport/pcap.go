package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

// captureConn copies every frame crossing the wrapped Conn into a pcap file.
type captureConn struct {
	Conn
	mu sync.Mutex
	f  *os.File
	w  *pcapgo.Writer
}

// WithCapture wraps c so that every frame read or written is also appended to path.
func WithCapture(c Conn, path string) (Conn, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &captureConn{Conn: c, f: f, w: w}, nil
}

func (c *captureConn) record(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	return c.w.WritePacket(ci, frame)
}

func (c *captureConn) ReadFrame() ([]byte, error) {
	frame, err := c.Conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	if err := c.record(frame); err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	return frame, nil
}

func (c *captureConn) WriteFrame(frame []byte) (int, error) {
	n, err := c.Conn.WriteFrame(frame)
	if err != nil {
		return n, err
	}
	if err := c.record(frame[:n]); err != nil {
		return n, fmt.Errorf("capture frame: %w", err)
	}
	return n, nil
}

func (c *captureConn) Close() error {
	err := c.Conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// replayConn serves frames from a pcap file. ReadFrame returns io.EOF once the
// file is exhausted.
type replayConn struct {
	name string
	f    *os.File
	r    *pcapgo.Reader
}

// OpenPcap opens a read-only Conn over a pcap file of Ethernet frames.
func OpenPcap(path string) (Conn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read pcap header %s: %w", path, err)
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("pcap file %s: unsupported link type %s", path, r.LinkType())
	}
	return &replayConn{name: path, f: f, r: r}, nil
}

func (c *replayConn) ReadFrame() ([]byte, error) {
	if c.r == nil {
		return nil, ErrClosed
	}
	data, _, err := c.r.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, nil
}

func (c *replayConn) WriteFrame([]byte) (int, error) { return 0, ErrReadOnly }

func (c *replayConn) HardwareAddr() net.HardwareAddr { return nil }

func (c *replayConn) Interface() string { return c.name }

func (c *replayConn) Close() error {
	if c.r == nil {
		return nil
	}
	c.r = nil
	return c.f.Close()
}
