//go:build linux

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/avbstream/internal/log"
)

// packetConn is a TPACKET_V3 AF_PACKET socket bound to one interface.
type packetConn struct {
	handle *afpacket.TPacket
	ifi    net.Interface
	closed atomic.Bool
}

// Dial opens a raw AF_PACKET connection on the selected interface.
func Dial(cfg Config) (Conn, error) {
	ifi, err := LookupInterface(cfg.Interface)
	if err != nil {
		return nil, err
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1 << 20
	}
	frameSize, blockSize, numBlocks, err := ringGeometry(bufferSize, MTU+18, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(ifi.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptAddVLANHeader(true),
		afpacket.OptPollTimeout(cfg.pollTimeout()),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open af_packet on %s: %w", ifi.Name, err)
	}

	if len(cfg.Filter) > 0 {
		if err := tp.SetBPF(cfg.Filter); err != nil {
			tp.Close()
			return nil, fmt.Errorf("attach bpf filter on %s: %w", ifi.Name, err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"iface":      ifi.Name,
		"mac":        ifi.HardwareAddr.String(),
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
	}).Debug("af_packet socket opened")

	var c Conn = &packetConn{handle: tp, ifi: ifi}
	if cfg.CaptureFile != "" {
		tee, err := WithCapture(c, cfg.CaptureFile)
		if err != nil {
			c.Close()
			return nil, err
		}
		c = tee
	}
	return c, nil
}

func (c *packetConn) ReadFrame() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	data, _, err := c.handle.ReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) {
			return nil, ErrPollTimeout
		}
		return nil, err
	}
	if len(data) > MTU+18 {
		data = data[:MTU+18]
	}
	return data, nil
}

func (c *packetConn) WriteFrame(frame []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if err := c.handle.WritePacketData(frame); err != nil {
		return 0, err
	}
	return len(frame), nil
}

func (c *packetConn) HardwareAddr() net.HardwareAddr { return c.ifi.HardwareAddr }

func (c *packetConn) Interface() string { return c.ifi.Name }

func (c *packetConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.handle.Close()
	return nil
}
