package transport

import (
	"fmt"
	"net"
)

// SelectInterface picks the interface to bind. A non-empty name must match exactly;
// otherwise the first up, non-loopback interface with an Ethernet address wins.
func SelectInterface(name string, ifaces []net.Interface) (net.Interface, error) {
	if name != "" {
		for _, ifi := range ifaces {
			if ifi.Name == name {
				if len(ifi.HardwareAddr) != 6 {
					return net.Interface{}, fmt.Errorf("%w: %s has no ethernet address", ErrNoInterface, name)
				}
				return ifi, nil
			}
		}
		return net.Interface{}, fmt.Errorf("%w: %s not found", ErrNoInterface, name)
	}

	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		if len(ifi.HardwareAddr) != 6 {
			continue
		}
		return ifi, nil
	}
	return net.Interface{}, ErrNoInterface
}

// LookupInterface runs SelectInterface over the host's interfaces.
func LookupInterface(name string) (net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, fmt.Errorf("list interfaces: %w", err)
	}
	return SelectInterface(name, ifaces)
}
