// Package netiface lists the host addresses eligible for debug-port
// forwarding: unicast IPv4 addresses on interfaces that are up and not
// the loopback interface.
package netiface

import "net"

// Enumerate returns the eligible addresses in OS enumeration order.
// An empty result is valid and means no rules will be installed.
func Enumerate() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			// One broken interface must not hide the rest.
			continue
		}
		out = append(out, filterIPv4(addrs)...)
	}
	return out, nil
}

// filterIPv4 keeps unicast IPv4 addresses, dropping anything in
// 127.0.0.0/8 even when it appears on a non-loopback interface.
func filterIPv4(addrs []net.Addr) []string {
	var out []string
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		out = append(out, ip4.String())
	}
	return out
}
