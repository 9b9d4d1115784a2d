package receiver

import "net"

// Placeholders returned by LocalIPv4.
const (
	AddressUnavailable = "unavailable"
	NoIPv4Address      = "no IPv4 address"
)

// LocalIPv4 returns the first non-loopback IPv4 address of an up
// interface, falling back to a loopback address. It never fails.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return AddressUnavailable
	}

	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, a...)
	}
	return pickIPv4(addrs)
}

func pickIPv4(addrs []net.Addr) string {
	var loopback string
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}
		if ip4.IsLoopback() {
			if loopback == "" {
				loopback = ip4.String()
			}
			continue
		}
		return ip4.String()
	}
	if loopback != "" {
		return loopback
	}
	return NoIPv4Address
}
