//go:build linux

package clock

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"firestige.xyz/avbstream/internal/core"
)

// gPTP daemon private ioctl returning the current network time.
const siocGetPTPTime = unix.SIOCDEVPRIVATE + 7

// gptpTime mirrors the driver's {u48 sec, u32 nsec} reply.
type gptpTime struct {
	Sec  uint64
	Nsec uint32
	_    uint32
}

type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
	_    [16]byte
}

// PTPClock reads network time from the gPTP driver or a PTP hardware clock.
type PTPClock struct {
	mu      sync.Mutex
	fd      int
	clockID int32
	phc     bool
	ifr     *ifreq
	reply   *gptpTime
}

// OpenPTP opens the PTP time source described by cfg.
func OpenPTP(cfg PTPConfig) (*PTPClock, error) {
	if cfg.Device != "" {
		fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
		}
		return &PTPClock{fd: fd, phc: true, clockID: fdToClockID(fd)}, nil
	}

	if cfg.Interface == "" {
		return nil, fmt.Errorf("%w: no interface for gptp query", ErrUnavailable)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("open gptp socket: %w", err)
	}
	c := &PTPClock{fd: fd, ifr: &ifreq{}, reply: &gptpTime{}}
	copy(c.ifr.name[:unix.IFNAMSIZ-1], cfg.Interface)
	return c, nil
}

// fdToClockID derives the dynamic POSIX clock id of an open PTP device.
func fdToClockID(fd int) int32 {
	return int32((^fd << 3) | 3)
}

func (c *PTPClock) Now() (core.ClockTime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fd < 0 {
		return core.ClockTimeNone, fmt.Errorf("%w: closed", ErrUnavailable)
	}

	if c.phc {
		var ts unix.Timespec
		if err := unix.ClockGettime(c.clockID, &ts); err != nil {
			return core.ClockTimeNone, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return core.ClockTime(ts.Nano()), nil
	}

	*c.reply = gptpTime{}
	c.ifr.data = uintptr(unsafe.Pointer(c.reply))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), uintptr(siocGetPTPTime), uintptr(unsafe.Pointer(c.ifr)))
	if errno != 0 {
		return core.ClockTimeNone, fmt.Errorf("%w: %w", ErrUnavailable, errno)
	}
	return core.ClockTime(c.reply.Sec)*core.Second + core.ClockTime(c.reply.Nsec), nil
}

// Close releases the underlying descriptor.
func (c *PTPClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
