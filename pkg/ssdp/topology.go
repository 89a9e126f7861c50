package ssdp

import (
	"fmt"
	"net"
)

var multicastGroupIP = net.ParseIP(MulticastGroup).To4()

type interfaceRecord struct {
	ips []net.IP
	up  bool
}

// topology is the per-interface table of addresses and up/multicast
// state (spec §3.2, §4.3, §4.6). Every mutating method here may issue a
// multicast join/leave side effect on the supplied transport.
type topology struct {
	interfaces map[InterfaceIndex]*interfaceRecord
}

func newTopology() topology {
	return topology{interfaces: make(map[InterfaceIndex]*interfaceRecord)}
}

// liveIPs returns every address on an up (UP+RUNNING+MULTICAST)
// interface, flattened across all interfaces — the "live (ip, ix)" set
// the engine sends full salvos to.
func (t *topology) liveIPs() []net.IP {
	var ips []net.IP
	for _, rec := range t.interfaces {
		if rec.up {
			ips = append(ips, rec.ips...)
		}
	}
	return ips
}

// onNewLink handles NetworkEvent.NewLink. If the interface lacks the
// MULTICAST flag it is ignored entirely — no record is created and no
// group is ever joined for it (spec §3.6). On first sight of a
// multicast-capable interface the group is joined; on a later NewLink
// for the same index only the up/down state is refreshed. It returns the
// addresses that need a catch-up salvo because the interface just
// transitioned from down to up (spec §4.6); callers on an interface that
// was already up, or that just appeared already down, get nil.
func (t *topology) onNewLink(ix InterfaceIndex, flags Flags, mcast Multicast) ([]net.IP, error) {
	if !flags.Has(FlagMulticast) {
		return nil, nil
	}
	up := flags.Has(FlagUp | FlagRunning)

	rec, exists := t.interfaces[ix]
	if !exists {
		if err := mcast.JoinMulticastGroup(multicastGroupIP, ix); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJoinMulticast, err)
		}
		t.interfaces[ix] = &interfaceRecord{up: up}
		return nil, nil
	}

	wasUp := rec.up
	rec.up = up
	if up && !wasUp {
		return rec.ips, nil
	}
	return nil, nil
}

// onDelLink handles NetworkEvent.DelLink, leaving the multicast group if
// the interface had joined one.
func (t *topology) onDelLink(ix InterfaceIndex, mcast Multicast) error {
	if _, ok := t.interfaces[ix]; !ok {
		return nil
	}
	delete(t.interfaces, ix)
	if err := mcast.LeaveMulticastGroup(multicastGroupIP, ix); err != nil {
		return fmt.Errorf("%w: %v", ErrLeaveMulticast, err)
	}
	return nil
}

// onNewAddr handles NetworkEvent.NewAddr. IPv6 addresses are silently
// dropped (spec §3.6, testable scenario S6); cotton-netif guarantees a
// NewLink always precedes a NewAddr for the same index, so an address
// for an unknown interface is ignored rather than treated as an error.
// It reports the address that needs a catch-up salvo when the interface
// is already up.
func (t *topology) onNewAddr(ix InterfaceIndex, addr net.IP) (net.IP, bool) {
	v4 := addr.To4()
	if v4 == nil {
		return nil, false
	}
	rec, ok := t.interfaces[ix]
	if !ok {
		return nil, false
	}
	for _, existing := range rec.ips {
		if existing.Equal(v4) {
			return nil, false
		}
	}
	rec.ips = append(rec.ips, v4)
	if rec.up {
		return v4, true
	}
	return nil, false
}

// onDelAddr handles NetworkEvent.DelAddr, removing the address from its
// interface's list if present. The list has no ordering semantics so
// removal need not preserve order.
func (t *topology) onDelAddr(ix InterfaceIndex, addr net.IP) {
	rec, ok := t.interfaces[ix]
	if !ok {
		return
	}
	for i, existing := range rec.ips {
		if existing.Equal(addr) {
			rec.ips[i] = rec.ips[len(rec.ips)-1]
			rec.ips = rec.ips[:len(rec.ips)-1]
			return
		}
	}
}
