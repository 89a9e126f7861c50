// Package udptransport hosts the ssdp engine's TargetedSend and
// Multicast capabilities over a real IPv4 multicast UDP socket, using
// golang.org/x/net/ipv4 control messages to pick the outbound source
// address and to learn the inbound destination address per-datagram.
// It is adapted from the teacher's pkg/ssdp/listener.go: same socket
// setup and JoinGroup call, generalized from a single bound interface
// to an arbitrary, dynamically changing set keyed by InterfaceIndex,
// and with every phishing/detection concern stripped.
package udptransport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"ssdpkit/pkg/ssdp"
)

// Transport is a single shared multicast UDP socket implementing both
// ssdp.TargetedSend and ssdp.Multicast. One Transport serves every
// interface on the host; membership is tracked per InterfaceIndex by
// the engine's own topology, not by this type.
type Transport struct {
	conn *ipv4.PacketConn
	addr *net.UDPAddr
}

// Listen opens and binds the shared SSDP socket on port. It does not
// join any multicast group; join/leave happen later, per interface, via
// JoinMulticastGroup as the engine discovers interfaces through
// OnNetworkEvent.
func Listen(port int) (*Transport, error) {
	listenAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen: %w", err)
	}
	if err := conn.SetReadBuffer(65536); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udptransport: set read buffer: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv4.FlagDst|ipv4.FlagSrc|ipv4.FlagInterface, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udptransport: set control message: %w", err)
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", ssdp.MulticastGroup, ssdp.MulticastPort))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("udptransport: resolve group address: %w", err)
	}

	return &Transport{conn: pconn, addr: groupAddr}, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the socket's bound local address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// JoinMulticastGroup joins the SSDP multicast group on the interface
// identified by ix.
func (t *Transport) JoinMulticastGroup(groupIP net.IP, ix ssdp.InterfaceIndex) error {
	iface, err := net.InterfaceByIndex(int(ix))
	if err != nil {
		return fmt.Errorf("udptransport: interface %d: %w", ix, err)
	}
	if err := t.conn.JoinGroup(iface, &net.UDPAddr{IP: groupIP}); err != nil {
		return fmt.Errorf("%w: %v", ssdp.ErrJoinMulticast, err)
	}
	return nil
}

// LeaveMulticastGroup leaves the SSDP multicast group on the interface
// identified by ix.
func (t *Transport) LeaveMulticastGroup(groupIP net.IP, ix ssdp.InterfaceIndex) error {
	iface, err := net.InterfaceByIndex(int(ix))
	if err != nil {
		return fmt.Errorf("udptransport: interface %d: %w", ix, err)
	}
	if err := t.conn.LeaveGroup(iface, &net.UDPAddr{IP: groupIP}); err != nil {
		return fmt.Errorf("%w: %v", ssdp.ErrLeaveMulticast, err)
	}
	return nil
}

// SendWith renders a datagram via fill and sends it from the interface
// owning the address from. Per-packet source selection relies on the
// IPv4 control message's Src field, set before the write, which is how
// a single shared socket can speak as several different local addresses
// on a multi-homed host.
func (t *Transport) SendWith(to net.UDPAddr, from net.IP, fill func([]byte) int) error {
	buf := make([]byte, ssdp.MaxDatagram)
	n := fill(buf)

	cm := &ipv4.ControlMessage{Src: from}
	if _, err := t.conn.WriteTo(buf[:n], cm, &to); err != nil {
		return fmt.Errorf("%w: %v", ssdp.ErrSendFailed, err)
	}
	return nil
}

// Datagram is one received UDP payload, annotated with the addresses
// Engine.OnData needs: the address the packet was sent to (wasTo) and
// the address it came from (wasFrom).
type Datagram struct {
	Payload []byte
	WasTo   net.IP
	WasFrom net.UDPAddr
}

// ReadDatagram blocks for the next inbound packet and returns it with
// its destination and source addresses resolved from the IPv4 control
// message. The returned Payload aliases buf and is only valid until buf
// is reused.
func (t *Transport) ReadDatagram(buf []byte) (Datagram, error) {
	n, cm, src, err := t.conn.ReadFrom(buf)
	if err != nil {
		return Datagram{}, fmt.Errorf("udptransport: read: %w", err)
	}
	udpSrc, ok := src.(*net.UDPAddr)
	if !ok {
		return Datagram{}, fmt.Errorf("udptransport: unexpected source address type %T", src)
	}

	var wasTo net.IP
	if cm != nil {
		wasTo = cm.Dst
	}
	return Datagram{
		Payload: buf[:n],
		WasTo:   wasTo,
		WasFrom: *udpSrc,
	}, nil
}
