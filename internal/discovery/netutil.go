package discovery

import (
	"net"
)

// destination is one broadcast target, optionally pinned to an interface.
type destination struct {
	addr    *net.UDPAddr
	ifIndex int
}

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface,
// or "" when none is found.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
				return ip4.String()
			}
		}
	}
	return ""
}

// broadcastDestinations computes the directed broadcast address of every up,
// broadcast-capable IPv4 interface. It falls back to 255.255.255.255.
func broadcastDestinations(port int) []destination {
	var out []destination
	seen := make(map[string]bool)

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagBroadcast == 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				ipNet, ok := addr.(*net.IPNet)
				if !ok {
					continue
				}
				bcast := directedBroadcast(ipNet)
				if bcast == nil || seen[bcast.String()] {
					continue
				}
				seen[bcast.String()] = true
				out = append(out, destination{
					addr:    &net.UDPAddr{IP: bcast, Port: port},
					ifIndex: iface.Index,
				})
			}
		}
	}

	if len(out) == 0 {
		out = append(out, destination{addr: &net.UDPAddr{IP: net.IPv4bcast, Port: port}})
	}
	return out
}

// directedBroadcast returns ip | ^mask for an IPv4 network, nil otherwise.
func directedBroadcast(n *net.IPNet) net.IP {
	ip4 := n.IP.To4()
	if ip4 == nil || len(n.Mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range ip4 {
		out[i] = ip4[i] | ^n.Mask[i]
	}
	return out
}
