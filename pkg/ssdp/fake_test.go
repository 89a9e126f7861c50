package ssdp

import (
	"errors"
	"net"
	"strings"
)

// fakeTransport is a hand-rolled TargetedSend + Multicast recorder,
// grounded in engine.rs's own FakeSocket test fixture: every call is
// appended to a slice so assertions can inspect exactly what the engine
// sent or joined, instead of needing a real socket.
type fakeTransport struct {
	sends  []sentDatagram
	joins  []membershipCall
	leaves []membershipCall

	failJoin  bool
	failLeave bool
}

type sentDatagram struct {
	to      net.UDPAddr
	from    net.IP
	payload string
}

type membershipCall struct {
	addr net.IP
	ix   InterfaceIndex
}

func (f *fakeTransport) SendWith(to net.UDPAddr, from net.IP, fill func([]byte) int) error {
	buf := make([]byte, MaxDatagram)
	n := fill(buf)
	f.sends = append(f.sends, sentDatagram{to: to, from: from, payload: string(buf[:n])})
	return nil
}

func (f *fakeTransport) JoinMulticastGroup(addr net.IP, ix InterfaceIndex) error {
	if f.failJoin {
		return errors.New("injected join failure")
	}
	f.joins = append(f.joins, membershipCall{addr: addr, ix: ix})
	return nil
}

func (f *fakeTransport) LeaveMulticastGroup(addr net.IP, ix InterfaceIndex) error {
	if f.failLeave {
		return errors.New("injected leave failure")
	}
	f.leaves = append(f.leaves, membershipCall{addr: addr, ix: ix})
	return nil
}

// requestLine returns the first line of a sent datagram's payload.
func (d sentDatagram) requestLine() string {
	line, _, _ := strings.Cut(d.payload, "\r\n")
	return line
}

// header returns the trimmed value of the named header in a sent
// datagram, or "" if absent. Comparison is case-insensitive on the
// header name, matching the wire format's own case-folding.
func (d sentDatagram) header(name string) string {
	upper := strings.ToUpper(name)
	for _, line := range strings.Split(d.payload, "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok && strings.ToUpper(key) == upper {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func mustIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("bad test IP: " + s)
	}
	return ip
}

type recordingCallback struct {
	notifications []Notification
}

func (r *recordingCallback) OnNotification(n Notification) {
	r.notifications = append(r.notifications, n)
}
