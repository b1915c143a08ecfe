//go:build !linux

package transport

import (
	"errors"
)

// Dial is only available where AF_PACKET exists.
func Dial(cfg Config) (Conn, error) {
	return nil, errors.New("transport: raw ethernet sockets require linux")
}
