// Package transport moves raw 802.1Q Ethernet frames between the AVB engines and a network interface.
package transport

import (
	"errors"
	"net"
	"time"

	"golang.org/x/net/bpf"
)

// MTU bounds every frame read from or written to a Conn.
const MTU = 1500

var (
	// ErrPollTimeout is returned by ReadFrame when one poll interval elapsed with no frame.
	ErrPollTimeout = errors.New("transport: poll timeout")
	// ErrNoInterface is returned when no usable network interface exists.
	ErrNoInterface = errors.New("transport: no usable network interface")
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("transport: connection closed")
	// ErrReadOnly is returned by WriteFrame on replay connections.
	ErrReadOnly = errors.New("transport: connection is read-only")
)

// Conn is a raw Ethernet endpoint.
type Conn interface {
	// ReadFrame returns the next frame. The slice is only valid until the next call.
	ReadFrame() ([]byte, error)
	// WriteFrame sends one complete frame and returns the number of bytes written.
	WriteFrame(frame []byte) (int, error)
	// HardwareAddr is the MAC address of the bound interface.
	HardwareAddr() net.HardwareAddr
	// Interface is the name of the bound interface.
	Interface() string
	Close() error
}

// Config describes a raw connection.
type Config struct {
	Interface   string        // Empty = first up, non-loopback interface
	PollTimeout time.Duration // Read poll interval; ReadFrame reports ErrPollTimeout after each one
	BufferSize  int           // Receive ring size in bytes
	Filter      []bpf.RawInstruction
	CaptureFile string // Optional pcap copy of every frame
}

func (c Config) pollTimeout() time.Duration {
	if c.PollTimeout <= 0 {
		return 100 * time.Millisecond
	}
	return c.PollTimeout
}
