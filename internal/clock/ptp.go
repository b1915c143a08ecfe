package clock

// PTPConfig selects how PTP time is read.
type PTPConfig struct {
	// Interface is the AVB interface queried through the gPTP driver ioctl.
	Interface string
	// Device is a PTP hardware clock such as /dev/ptp0. It takes precedence over Interface.
	Device string
}
