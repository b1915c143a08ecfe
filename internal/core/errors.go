// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the talker and listener engines.
var (
	// Lifecycle errors
	ErrOpen          = errors.New("avb: open failed")
	ErrNotOpen       = errors.New("avb: engine not open")
	ErrNotNegotiated = errors.New("avb: not negotiated")

	// Streaming errors
	ErrFlow       = errors.New("avb: flow error")
	ErrFlushing   = errors.New("avb: flushing")
	ErrShortWrite = errors.New("avb: short write")

	// Payload errors
	ErrUnsupportedFormat = errors.New("avb: unsupported payload format")
	ErrNotRawPCM         = errors.New("avb: payload is not raw pcm")

	// Configuration errors
	ErrConfigInvalid = errors.New("avb: invalid configuration")
)
