package ssdpservice

import (
	"net"
	"time"

	"ssdpkit/internal/obsmetrics"
	"ssdpkit/pkg/ssdp"
)

// instrumentedTransport wraps a Transport so every outbound send is timed
// and counted by kind (ssdp.Kind.String(): NotifyAlive, NotifyByeBye,
// Search, Response, or "unknown" when the datagram does not parse),
// without requiring ssdp.Engine itself to know about metrics.
type instrumentedTransport struct {
	Transport
}

func (t instrumentedTransport) SendWith(to net.UDPAddr, from net.IP, fill func([]byte) int) error {
	buf := make([]byte, ssdp.MaxDatagram)
	var n int
	start := time.Now()
	err := t.Transport.SendWith(to, from, func(b []byte) int {
		n = fill(b)
		copy(buf, b[:n])
		return n
	})
	kind := "unknown"
	if msg, perr := ssdp.Parse(buf[:n]); perr == nil {
		kind = msg.Kind.String()
	}
	obsmetrics.SendLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err == nil {
		obsmetrics.DatagramsSentTotal.WithLabelValues(kind).Inc()
	}
	return err
}
