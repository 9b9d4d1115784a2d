package receiver

import (
	"net"
	"strconv"
	"testing"
)

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ipNet(s string) *net.IPNet {
	return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
}

func TestPickIPv4(t *testing.T) {
	tests := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{"none", nil, NoIPv4Address},
		{"ipv6 only", []net.Addr{ipNet("fe80::1"), ipNet("::1")}, NoIPv4Address},
		{"loopback only", []net.Addr{ipNet("127.0.0.1")}, "127.0.0.1"},
		{"prefers non-loopback", []net.Addr{ipNet("127.0.0.1"), ipNet("fe80::1"), ipNet("192.168.1.10")}, "192.168.1.10"},
		{"first non-loopback wins", []net.Addr{ipNet("10.0.0.5"), ipNet("192.168.1.10")}, "10.0.0.5"},
		{"ip addr form", []net.Addr{&net.IPAddr{IP: net.ParseIP("172.16.0.9")}}, "172.16.0.9"},
		{"unknown addr type", []net.Addr{&net.UDPAddr{IP: net.ParseIP("10.1.1.1")}}, NoIPv4Address},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickIPv4(tt.addrs); got != tt.want {
				t.Errorf("pickIPv4() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocalIPv4NeverEmpty(t *testing.T) {
	if got := LocalIPv4(); got == "" {
		t.Fatal("LocalIPv4 returned an empty string")
	}
}
