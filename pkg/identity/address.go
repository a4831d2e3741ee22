package identity

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrAddressSpaceExhausted is returned when a subnet has no free host
// address left for a new client.
var ErrAddressSpaceExhausted = errors.New("subnet address space exhausted")

// ServerAddress returns the first usable host address of the subnet, which
// the server interface always takes for itself.
func ServerAddress(subnet netip.Prefix) (netip.Addr, error) {
	network := subnet.Masked().Addr()
	first := network.Next()
	if !subnet.Contains(first) || isBroadcast(first, subnet) {
		return netip.Addr{}, fmt.Errorf("subnet %s has no usable host address", subnet)
	}
	return first, nil
}

// AssignClientAddress picks the lowest unused host address in the subnet,
// excluding the network address, the broadcast address, the server's own
// address and every address in taken. First-fit keeps assignments stable when
// clients in the middle of the range are deleted and re-added.
func AssignClientAddress(subnet netip.Prefix, server netip.Addr, taken []netip.Addr) (netip.Addr, error) {
	used := make(map[netip.Addr]struct{}, len(taken)+1)
	used[server] = struct{}{}
	for _, a := range taken {
		used[a] = struct{}{}
	}

	for a := subnet.Masked().Addr().Next(); subnet.Contains(a); a = a.Next() {
		if isBroadcast(a, subnet) {
			break
		}
		if _, ok := used[a]; ok {
			continue
		}
		return a, nil
	}
	return netip.Addr{}, ErrAddressSpaceExhausted
}

// isBroadcast reports whether a is the subnet's broadcast address (all host
// bits set). Only meaningful for IPv4 subnets narrower than /31.
func isBroadcast(a netip.Addr, subnet netip.Prefix) bool {
	if !a.Is4() || subnet.Bits() >= 31 {
		return false
	}
	b := a.As4()
	hostBits := 32 - subnet.Bits()
	for i := 3; i >= 0 && hostBits > 0; i-- {
		n := hostBits
		if n > 8 {
			n = 8
		}
		mask := byte(1<<n) - 1
		if b[i]&mask != mask {
			return false
		}
		hostBits -= n
	}
	return true
}
