// Package ssdpservice wires the transport-agnostic ssdp.Engine to a real
// network: a Reader+TargetedSend+Multicast transport for I/O, a
// NetworkFeed for interface/address changes, and a single owning
// goroutine that serializes every call into the engine, mirroring the
// original cotton-ssdp Service's single-poll-loop design (service.rs)
// and the teacher's goroutine-per-socket pattern in
// cmd/goSSDPkit/main.go.
package ssdpservice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ssdpkit/internal/obsmetrics"
	"ssdpkit/internal/udptransport"
	"ssdpkit/pkg/ssdp"
)

// Datagram is one received UDP payload, annotated with the addresses
// Engine.OnData needs. It is the same shape udptransport.Transport
// produces; aliased here so Reader implementations outside
// internal/udptransport (fakes, tests) can satisfy the interface too.
type Datagram = udptransport.Datagram

// Reader is the receive half of a transport. internal/udptransport
// implements it alongside ssdp.TargetedSend and ssdp.Multicast.
type Reader interface {
	ReadDatagram(buf []byte) (Datagram, error)
}

// Transport is everything the engine and this service need from the
// network: send, multicast membership, and receive.
type Transport interface {
	ssdp.TargetedSend
	ssdp.Multicast
	Reader
}

// NetworkFeed produces the initial interface/address snapshot and then
// a live stream of changes. internal/netfeed implements it.
type NetworkFeed interface {
	Snapshot() ([]ssdp.NetworkEvent, error)
	Run(ctx context.Context, events chan<- ssdp.NetworkEvent) error
}

// Service owns one ssdp.Engine and every goroutine that feeds it. All
// public methods are safe to call from any goroutine: they hand their
// work to the engine's owning goroutine over a channel rather than
// touching engine state directly.
type Service struct {
	transport Transport
	feed      NetworkFeed
	logger    *zap.SugaredLogger

	commands chan func(*ssdp.Engine)
	events   chan ssdp.NetworkEvent
	incoming chan Datagram
}

// New creates a Service over an already-listening transport. Run must be
// called to start processing.
func New(transport Transport, feed NetworkFeed, logger *zap.SugaredLogger) *Service {
	return &Service{
		transport: instrumentedTransport{transport},
		feed:      feed,
		logger:    logger,
		commands:  make(chan func(*ssdp.Engine)),
		events:    make(chan ssdp.NetworkEvent, 16),
		incoming:  make(chan Datagram, 16),
	}
}

// Subscribe registers a new active search and returns its key, blocking
// until the engine's owning goroutine has processed it.
func (s *Service) Subscribe(notificationType string, cb ssdp.Callback) ssdp.SubscriptionKey {
	result := make(chan ssdp.SubscriptionKey, 1)
	s.commands <- func(e *ssdp.Engine) {
		result <- e.Subscribe(notificationType, cb, s.transport)
	}
	return <-result
}

// Unsubscribe removes a subscription.
func (s *Service) Unsubscribe(key ssdp.SubscriptionKey) {
	done := make(chan struct{})
	s.commands <- func(e *ssdp.Engine) {
		e.Unsubscribe(key)
		close(done)
	}
	<-done
}

// Advertise announces a local resource.
func (s *Service) Advertise(usn string, ad ssdp.Advertisement) {
	done := make(chan struct{})
	s.commands <- func(e *ssdp.Engine) {
		e.Advertise(usn, ad, s.transport)
		close(done)
	}
	<-done
}

// Deadvertise withdraws a previously-advertised resource.
func (s *Service) Deadvertise(usn string) {
	done := make(chan struct{})
	s.commands <- func(e *ssdp.Engine) {
		e.Deadvertise(usn, s.transport)
		close(done)
	}
	<-done
}

// Run is the engine's owning goroutine. It applies the feed's initial
// snapshot, starts the netfeed and datagram readers, then services
// network events, inbound datagrams, host commands, and the
// retransmission timer until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	engine := ssdp.NewEngine(time.Now())

	snapshot, err := s.feed.Snapshot()
	if err != nil {
		return fmt.Errorf("ssdpservice: initial snapshot: %w", err)
	}
	for _, ev := range snapshot {
		if err := engine.OnNetworkEvent(ev, s.transport, s.transport); err != nil {
			s.logger.Warnw("snapshot network event failed", "index", ev.Index, "err", err)
		}
	}
	obsmetrics.MulticastMemberships.Set(float64(engine.MembershipCount()))

	errs := make(chan error, 2)
	go func() {
		errs <- s.feed.Run(ctx, s.events)
	}()
	go func() {
		errs <- s.readLoop(ctx)
	}()

	timer := time.NewTimer(engine.NextWakeup(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errs:
			return err

		case cmd := <-s.commands:
			cmd(engine)

		case ev := <-s.events:
			if err := engine.OnNetworkEvent(ev, s.transport, s.transport); err != nil {
				s.logger.Warnw("network event failed", "index", ev.Index, "kind", ev.Kind, "err", err)
			}
			obsmetrics.MulticastMemberships.Set(float64(engine.MembershipCount()))

		case dg := <-s.incoming:
			if _, err := ssdp.Parse(dg.Payload); err != nil {
				obsmetrics.DatagramsDroppedTotal.WithLabelValues("parse_error").Inc()
			}
			engine.OnData(dg.Payload, s.transport, dg.WasTo, dg.WasFrom)

		case now := <-timer.C:
			if fired, phase := engine.Wakeup(now, s.transport); fired {
				obsmetrics.SalvosTotal.WithLabelValues(strconv.Itoa(int(phase))).Inc()
			}
		}

		obsmetrics.SubscriberQueueDepth.Set(float64(len(s.events) + len(s.incoming)))
		timer.Reset(engine.NextWakeup(time.Now()))
	}
}

// readLoop pumps inbound datagrams from the transport into s.incoming
// until ctx is canceled or the socket errors out.
func (s *Service) readLoop(ctx context.Context) error {
	buf := make([]byte, ssdp.MaxDatagram)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		dg, err := s.transport.ReadDatagram(buf)
		if err != nil {
			obsmetrics.DatagramsDroppedTotal.WithLabelValues("read_error").Inc()
			return fmt.Errorf("ssdpservice: read loop: %w", err)
		}
		payload := make([]byte, len(dg.Payload))
		copy(payload, dg.Payload)
		dg.Payload = payload

		select {
		case s.incoming <- dg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
