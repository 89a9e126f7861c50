package ssdpservice

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ssdpkit/pkg/ssdp"
)

// fakeTransport is a minimal in-memory Transport: sends are recorded,
// joins always succeed, and ReadDatagram blocks until close is called or
// a test feeds it a datagram through deliver.
type fakeTransport struct {
	mu    sync.Mutex
	sends []string

	queue  chan Datagram
	closed chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		queue:  make(chan Datagram, 8),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) SendWith(to net.UDPAddr, from net.IP, fill func([]byte) int) error {
	buf := make([]byte, ssdp.MaxDatagram)
	n := fill(buf)
	f.mu.Lock()
	f.sends = append(f.sends, string(buf[:n]))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) JoinMulticastGroup(addr net.IP, ix ssdp.InterfaceIndex) error  { return nil }
func (f *fakeTransport) LeaveMulticastGroup(addr net.IP, ix ssdp.InterfaceIndex) error { return nil }

func (f *fakeTransport) ReadDatagram(buf []byte) (Datagram, error) {
	select {
	case dg := <-f.queue:
		return dg, nil
	case <-f.closed:
		return Datagram{}, errors.New("fakeTransport: closed")
	}
}

func (f *fakeTransport) deliver(dg Datagram) { f.queue <- dg }
func (f *fakeTransport) close()              { close(f.closed) }

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// fakeFeed reports one live interface at startup and then blocks until
// ctx is canceled, delivering no further events.
type fakeFeed struct {
	snapshot []ssdp.NetworkEvent
}

func (f *fakeFeed) Snapshot() ([]ssdp.NetworkEvent, error) { return f.snapshot, nil }

func (f *fakeFeed) Run(ctx context.Context, events chan<- ssdp.NetworkEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingCallback struct {
	mu            sync.Mutex
	notifications []ssdp.Notification
}

func (r *recordingCallback) OnNotification(n ssdp.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingCallback) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

func TestServiceAdvertiseAndSearchRoundTrip(t *testing.T) {
	transport := newFakeTransport()
	feed := &fakeFeed{
		snapshot: []ssdp.NetworkEvent{
			{Kind: ssdp.EventNewLink, Index: 3, Flags: ssdp.FlagUp | ssdp.FlagRunning | ssdp.FlagMulticast},
			{Kind: ssdp.EventNewAddr, Index: 3, Addr: net.ParseIP("10.0.0.9")},
		},
	}
	logger := zap.NewNop().Sugar()
	svc := New(transport, feed, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	svc.Advertise("uuid:svc-test", ssdp.Advertisement{
		NotificationType: "upnp:rootdevice",
		Location:         "http://0.0.0.0:9000/desc.xml",
	})

	cb := &recordingCallback{}
	svc.Subscribe("upnp:rootdevice", cb)

	searchBuf := make([]byte, ssdp.MaxDatagram)
	n := ssdp.BuildSearch(searchBuf, "upnp:rootdevice")
	transport.deliver(Datagram{
		Payload: searchBuf[:n],
		WasTo:   net.ParseIP("10.0.0.9"),
		WasFrom: net.UDPAddr{IP: net.ParseIP("10.0.0.50"), Port: 2000},
	})

	deadline := time.After(2 * time.Second)
	for transport.sendCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for sends, got %d", transport.sendCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := cb.count(); got != 0 {
		t.Fatalf("subscriber should not see inbound searches, got %d notifications", got)
	}

	cancel()
	transport.close()
	<-runErr
}
