package udptransport

import (
	"net"
	"testing"
	"time"
)

// TestLoopbackRoundTrip covers testable property 8: a datagram sent via
// SendWith on one Transport arrives at another Transport's
// ReadDatagram with the expected payload and source address.
func TestLoopbackRoundTrip(t *testing.T) {
	sender, err := Listen(0)
	if err != nil {
		t.Fatalf("Listen(sender): %v", err)
	}
	defer sender.Close()

	receiver, err := Listen(0)
	if err != nil {
		t.Fatalf("Listen(receiver): %v", err)
	}
	defer receiver.Close()

	receiverAddr, ok := receiver.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("receiver.LocalAddr() = %T, want *net.UDPAddr", receiver.LocalAddr())
	}
	to := net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: receiverAddr.Port}

	want := "hello ssdp"
	err = sender.SendWith(to, net.ParseIP("127.0.0.1"), func(buf []byte) int {
		return copy(buf, want)
	})
	if err != nil {
		t.Fatalf("SendWith: %v", err)
	}

	receiver.conn.SetReadDeadline(timeNowPlus(2 * time.Second))
	buf := make([]byte, 1500)
	dg, err := receiver.ReadDatagram(buf)
	if err != nil {
		t.Fatalf("ReadDatagram: %v", err)
	}
	if string(dg.Payload) != want {
		t.Fatalf("payload = %q, want %q", dg.Payload, want)
	}
	if !dg.WasFrom.IP.IsLoopback() {
		t.Fatalf("WasFrom = %v, want loopback", dg.WasFrom)
	}
}

func timeNowPlus(d time.Duration) time.Time {
	return time.Now().Add(d)
}
