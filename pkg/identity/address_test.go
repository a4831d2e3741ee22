package identity

import (
	"net/netip"
	"testing"
)

func TestServerAddress(t *testing.T) {
	subnet := netip.MustParsePrefix("10.0.0.0/24")
	addr, err := ServerAddress(subnet)
	if err != nil {
		t.Fatalf("ServerAddress: %v", err)
	}
	if addr != netip.MustParseAddr("10.0.0.1") {
		t.Fatalf("server address = %s, want 10.0.0.1", addr)
	}
}

// TestAssignSequential adds three clients to a /24 and expects .2, .3, .4.
func TestAssignSequential(t *testing.T) {
	subnet := netip.MustParsePrefix("10.0.0.0/24")
	server := netip.MustParseAddr("10.0.0.1")

	var taken []netip.Addr
	want := []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for _, w := range want {
		got, err := AssignClientAddress(subnet, server, taken)
		if err != nil {
			t.Fatalf("AssignClientAddress: %v", err)
		}
		if got != netip.MustParseAddr(w) {
			t.Fatalf("assigned %s, want %s", got, w)
		}
		taken = append(taken, got)
	}
}

// TestAssignReusesGap deletes a client in the middle of the range and expects
// the next assignment to fill the gap.
func TestAssignReusesGap(t *testing.T) {
	subnet := netip.MustParsePrefix("10.0.0.0/24")
	server := netip.MustParseAddr("10.0.0.1")
	taken := []netip.Addr{
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.4"),
	}

	got, err := AssignClientAddress(subnet, server, taken)
	if err != nil {
		t.Fatalf("AssignClientAddress: %v", err)
	}
	if got != netip.MustParseAddr("10.0.0.3") {
		t.Fatalf("assigned %s, want 10.0.0.3", got)
	}
}

func TestAssignExhausted(t *testing.T) {
	// /30 has network, two hosts, broadcast. Server takes the first host.
	subnet := netip.MustParsePrefix("10.0.0.0/30")
	server := netip.MustParseAddr("10.0.0.1")

	got, err := AssignClientAddress(subnet, server, nil)
	if err != nil {
		t.Fatalf("first assignment should succeed: %v", err)
	}
	if got != netip.MustParseAddr("10.0.0.2") {
		t.Fatalf("assigned %s, want 10.0.0.2", got)
	}

	_, err = AssignClientAddress(subnet, server, []netip.Addr{got})
	if err != ErrAddressSpaceExhausted {
		t.Fatalf("expected ErrAddressSpaceExhausted, got %v", err)
	}
}

func TestAssignSkipsBroadcast(t *testing.T) {
	subnet := netip.MustParsePrefix("10.0.0.0/29")
	server := netip.MustParseAddr("10.0.0.1")
	taken := []netip.Addr{
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.3"),
		netip.MustParseAddr("10.0.0.4"),
		netip.MustParseAddr("10.0.0.5"),
	}

	got, err := AssignClientAddress(subnet, server, taken)
	if err != nil {
		t.Fatalf("AssignClientAddress: %v", err)
	}
	if got != netip.MustParseAddr("10.0.0.6") {
		t.Fatalf("assigned %s, want 10.0.0.6 (last host before broadcast)", got)
	}

	taken = append(taken, got)
	if _, err := AssignClientAddress(subnet, server, taken); err != ErrAddressSpaceExhausted {
		t.Fatalf("broadcast address must never be assigned, got %v", err)
	}
}
