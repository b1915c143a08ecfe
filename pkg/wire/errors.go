package wire

import "errors"

// Frame validation errors. The listener absorbs all of them by dropping the frame.
var (
	ErrPacketTooShort        = errors.New("avb: packet too short")
	ErrInvalidEthernetHeader = errors.New("avb: invalid ethernet header")
	ErrInvalidAVTPDUHeader   = errors.New("avb: invalid avtpdu header")
	ErrInvalidCIPHeader      = errors.New("avb: invalid cip header")
)
