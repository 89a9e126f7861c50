// Package obsmetrics declares the prometheus metrics exported by ssdpd:
// salvo activity, datagram traffic, multicast membership, and subscriber
// queue depth. Like obslog, this is hosted-layer only — the ssdp engine
// package has no metrics dependency of its own.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SalvosTotal counts every Engine.Wakeup call that actually fired
	// (i.e. was due), labeled by the phase it advanced to ("0".."3").
	SalvosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_salvos_total",
			Help: "Total number of fired retransmission salvos, by resulting phase",
		},
		[]string{"phase"},
	)

	// DatagramsSentTotal counts outbound datagrams, labeled by kind
	// (NotifyAlive, NotifyByeBye, Search, Response — ssdp.Kind.String()).
	DatagramsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_datagrams_sent_total",
			Help: "Total number of outbound SSDP datagrams sent, by kind",
		},
		[]string{"kind"},
	)

	// DatagramsDroppedTotal counts inbound datagrams that failed to
	// parse or were otherwise discarded, labeled by reason.
	DatagramsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_datagrams_dropped_total",
			Help: "Total number of inbound datagrams dropped, by reason",
		},
		[]string{"reason"},
	)

	// MulticastMemberships tracks the current count of joined
	// (group, interface) pairs.
	MulticastMemberships = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ssdp_multicast_memberships",
			Help: "Current number of joined multicast group memberships",
		},
	)

	// SubscriberQueueDepth tracks how many NetworkEvent and datagram
	// items are queued for the engine's owning goroutine; a sustained
	// rise indicates the engine goroutine is falling behind.
	SubscriberQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ssdp_subscriber_queue_depth",
			Help: "Current depth of the engine's inbound event queue",
		},
	)

	// SendLatency measures how long a single TargetedSend.SendWith call
	// takes, labeled by kind (same label set as DatagramsSentTotal).
	SendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ssdp_send_latency_seconds",
			Help:    "Latency of outbound datagram sends",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
