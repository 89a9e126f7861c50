package ssdpservice

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ssdpkit/internal/obsmetrics"
	"ssdpkit/pkg/ssdp"
)

func TestInstrumentedTransportCountsSendsByKind(t *testing.T) {
	inner := newFakeTransport()
	it := instrumentedTransport{inner}

	before := testutil.ToFloat64(obsmetrics.DatagramsSentTotal.WithLabelValues("Search"))

	to := net.UDPAddr{IP: net.ParseIP("239.255.255.250"), Port: ssdp.MulticastPort}
	from := net.ParseIP("10.0.0.9")
	if err := it.SendWith(to, from, func(b []byte) int {
		return ssdp.BuildSearch(b, "ssdp:all")
	}); err != nil {
		t.Fatalf("SendWith: %v", err)
	}

	after := testutil.ToFloat64(obsmetrics.DatagramsSentTotal.WithLabelValues("Search"))
	if after != before+1 {
		t.Fatalf("DatagramsSentTotal{kind=Search} = %v, want %v", after, before+1)
	}
	if inner.sendCount() != 1 {
		t.Fatalf("underlying transport saw %d sends, want 1", inner.sendCount())
	}
}
