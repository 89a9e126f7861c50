package ssdp

import (
	"errors"
	"net"
)

// TargetedSend sends a single datagram from a chosen source address, so
// packets emerge with the correct return address on multi-homed hosts.
// On hosted platforms this is implemented with Linux IP_PKTINFO cmsgs
// (see internal/udptransport); on an embedded UDP stack it sets the
// endpoint source instead.
type TargetedSend interface {
	// SendWith calls fill to render a datagram into a caller-sized
	// scratch buffer, then sends the first n bytes fill returns to to,
	// using from as the source address.
	SendWith(to net.UDPAddr, from net.IP, fill func(buf []byte) (n int)) error
}

// Multicast joins or leaves the SSDP multicast group on a specific
// interface. It is keyed by InterfaceIndex, not by IP: engine.rs (the
// authoritative source for join/leave call sites) and spec §6.1 both key
// membership this way, because IP-keying is ambiguous on a multi-homed
// host. An earlier variant of the Rust source keyed Multicast by IP
// address alone; that variant is not followed here (see DESIGN.md).
type Multicast interface {
	JoinMulticastGroup(addr net.IP, ix InterfaceIndex) error
	LeaveMulticastGroup(addr net.IP, ix InterfaceIndex) error
}

// ErrSendFailed wraps a transport send failure. Send failures are always
// recovered locally by the engine (SSDP is best-effort over UDP); this
// sentinel exists for transports and tests that want to classify the
// failure, not for the engine's own control flow.
var ErrSendFailed = errors.New("ssdp: send failed")

// ErrJoinMulticast and ErrLeaveMulticast classify TransportError values
// that the engine propagates to the caller of OnNetworkEvent, since the
// engine cannot operate on an interface it cannot join.
var (
	ErrJoinMulticast  = errors.New("ssdp: join multicast group failed")
	ErrLeaveMulticast = errors.New("ssdp: leave multicast group failed")
)
