package ssdp

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"net"
	"strconv"
	"strings"
	"time"
)

var multicastAddr = net.UDPAddr{IP: multicastGroupIP, Port: MulticastPort}

// Engine is the transport-agnostic SSDP state machine (spec §2, §4.5).
// It owns all protocol state — topology, subscriptions, advertisements,
// and the retransmission clock — and is driven by a single owning
// goroutine through OnData, OnNetworkEvent and Wakeup. It never touches
// a socket itself; all I/O is performed through the TargetedSend and
// Multicast capabilities passed into each call.
type Engine struct {
	topo topology
	reg  registry
	clk  clock
	rng  *mathrand.Rand
}

// NewEngine creates an Engine with its clock started at now.
func NewEngine(now time.Time) *Engine {
	return &Engine{
		topo: newTopology(),
		reg:  newRegistry(),
		clk:  newClock(now),
		rng:  mathrand.New(mathrand.NewSource(seedFromCryptoRand())),
	}
}

func seedFromCryptoRand() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return time.Now().UnixNano()
	}
	return n.Int64()
}

// targetMatch implements the UPnP-DA target-matching lattice (spec §4.5,
// testable property 3): "ssdp:all" matches anything, exact strings
// match, and a lower-version search matches an equal-or-higher-version
// candidate of the same base type (e.g. "ns:T:1" matches "ns:T:2" but
// not vice versa).
func targetMatch(search, candidate string) bool {
	if search == ssdpAll {
		return true
	}
	if search == candidate {
		return true
	}
	sBase, sVersion, sOK := rsplitOnceColon(search)
	cBase, cVersion, cOK := rsplitOnceColon(candidate)
	if !sOK || !cOK || sBase != cBase {
		return false
	}
	sv, err := strconv.ParseUint(sVersion, 10, 64)
	if err != nil {
		return false
	}
	cv, err := strconv.ParseUint(cVersion, 10, 64)
	if err != nil {
		return false
	}
	return cv >= sv
}

func rsplitOnceColon(s string) (base, suffix string, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Subscribe registers a new active search, immediately sending a
// one-shot M-SEARCH for notificationType on every live (ip, interface)
// pair, and returns a key that can later be passed to Unsubscribe.
func (e *Engine) Subscribe(notificationType string, cb Callback, ucast TargetedSend) SubscriptionKey {
	e.searchOnAll(notificationType, ucast)
	return e.reg.addSearch(notificationType, cb)
}

// Unsubscribe removes a subscription. Removing an unknown key is a
// silent no-op.
func (e *Engine) Unsubscribe(key SubscriptionKey) {
	e.reg.removeSearch(key)
}

// Advertise announces a local resource, sending a NOTIFY ssdp:alive on
// every live (ip, interface) pair and recording it so future salvos and
// incoming searches see it. Re-advertising an existing USN replaces the
// prior record.
func (e *Engine) Advertise(usn string, ad Advertisement, ucast TargetedSend) {
	e.notifyOnAll(usn, ad, ucast)
	e.reg.setAdvertisement(usn, ad)
}

// Deadvertise withdraws a previously-advertised resource, sending a
// NOTIFY ssdp:byebye on every live (ip, interface) pair. Deadvertising
// an unknown USN is a silent no-op.
func (e *Engine) Deadvertise(usn string, ucast TargetedSend) {
	ad, ok := e.reg.removeAdvertisement(usn)
	if !ok {
		return
	}
	e.byebyeOnAll(usn, ad.NotificationType, ucast)
}

// OnData processes one inbound datagram. Parse failures are dropped
// silently. NotifyAlive/NotifyByeBye/Response messages are dispatched to
// matching subscribers; Search messages are answered with a Response for
// every advertisement whose notification_type matches the search target.
func (e *Engine) OnData(buf []byte, ucast TargetedSend, wasTo net.IP, wasFrom net.UDPAddr) {
	msg, err := Parse(buf)
	if err != nil {
		return
	}
	switch msg.Kind {
	case KindNotifyAlive:
		e.reg.callSubscribers(Notification{
			Kind:              NotificationAlive,
			NotificationType:  msg.NotificationType,
			UniqueServiceName: msg.UniqueServiceName,
			Location:          msg.Location,
		})
	case KindNotifyByeBye:
		e.reg.callSubscribers(Notification{
			Kind:              NotificationByeBye,
			NotificationType:  msg.NotificationType,
			UniqueServiceName: msg.UniqueServiceName,
		})
	case KindResponse:
		// A Response is delivered to subscribers as an Alive (spec §4.5).
		e.reg.callSubscribers(Notification{
			Kind:              NotificationAlive,
			NotificationType:  msg.SearchTarget,
			UniqueServiceName: msg.UniqueServiceName,
			Location:          msg.Location,
		})
	case KindSearch:
		e.respondToSearch(msg, ucast, wasTo, wasFrom)
	}
}

func (e *Engine) respondToSearch(msg Message, ucast TargetedSend, wasTo net.IP, wasFrom net.UDPAddr) {
	for usn, ad := range e.reg.advertisements {
		if !targetMatch(msg.SearchTarget, ad.NotificationType) {
			continue
		}
		location := rewriteLocationHost(ad.Location, wasTo)
		responseTarget := msg.SearchTarget
		if msg.SearchTarget == ssdpAll {
			responseTarget = ad.NotificationType
		}
		_ = ucast.SendWith(wasFrom, wasTo, func(b []byte) int {
			return BuildResponse(b, responseTarget, usn, location)
		})
	}
}

// OnNetworkEvent dispatches a NetworkEvent to the topology table (spec
// §4.3). On a link transitioning down to up, or a newly-added address,
// it also emits a full salvo restricted to that (ip, interface) pair so
// the newly-visible network sees the engine's state immediately. Join
// and leave failures are returned to the caller; every other outcome is
// handled internally.
func (e *Engine) OnNetworkEvent(ev NetworkEvent, mcast Multicast, ucast TargetedSend) error {
	switch ev.Kind {
	case EventNewLink:
		catchUp, err := e.topo.onNewLink(ev.Index, ev.Flags, mcast)
		if err != nil {
			return err
		}
		e.sendAll(catchUp, ucast)
	case EventDelLink:
		return e.topo.onDelLink(ev.Index, mcast)
	case EventNewAddr:
		if ip, ok := e.topo.onNewAddr(ev.Index, ev.Addr); ok {
			e.sendAll([]net.IP{ip}, ucast)
		}
	case EventDelAddr:
		e.topo.onDelAddr(ev.Index, ev.Addr)
	}
	return nil
}

// MembershipCount reports how many interfaces the engine currently
// considers joined to the multicast group. Hosted layers use this to
// drive a membership gauge; the engine itself has no use for the count.
func (e *Engine) MembershipCount() int {
	return len(e.topo.interfaces)
}

// NextWakeup returns how long the host should sleep before calling
// Wakeup again.
func (e *Engine) NextWakeup(now time.Time) time.Duration {
	return e.clk.nextWakeup(now)
}

// Wakeup fires the salvo action if the clock is due; it is a no-op
// otherwise, so missed or coalesced timer calls are always safe (spec
// §5). A salvo re-announces every advertisement and re-issues searches
// on every live (ip, interface) pair, with at most one ssdp:all
// M-SEARCH per pair regardless of how many subscriptions hold that
// target (testable property 5). It reports whether a salvo fired and,
// if so, the phase the clock advanced to, so hosted layers can label a
// salvo counter without reaching into engine-private state.
func (e *Engine) Wakeup(now time.Time, ucast TargetedSend) (fired bool, phase uint8) {
	if !e.clk.due(now) {
		return false, 0
	}
	phase = e.clk.advance(e.rng)

	for usn, ad := range e.reg.advertisements {
		e.notifyOnAll(usn, ad, ucast)
	}
	for _, target := range e.reg.searchTargets() {
		e.searchOnAll(target, ucast)
	}
	return true, phase
}

// sendAll emits a restricted salvo (searches then advertisements) over
// exactly the given source addresses — used for catch-up salvos when an
// interface comes up or a new address appears (spec §4.3, §4.6).
func (e *Engine) sendAll(ips []net.IP, ucast TargetedSend) {
	for _, ip := range ips {
		for _, target := range e.reg.searchTargets() {
			e.searchOn(target, ip, ucast)
		}
		for usn, ad := range e.reg.advertisements {
			e.notifyOn(usn, ad, ip, ucast)
		}
	}
}

func (e *Engine) searchOnAll(target string, ucast TargetedSend) {
	for _, ip := range e.topo.liveIPs() {
		e.searchOn(target, ip, ucast)
	}
}

func (e *Engine) searchOn(target string, source net.IP, ucast TargetedSend) {
	_ = ucast.SendWith(multicastAddr, source, func(b []byte) int {
		return BuildSearch(b, target)
	})
}

func (e *Engine) notifyOnAll(usn string, ad Advertisement, ucast TargetedSend) {
	for _, ip := range e.topo.liveIPs() {
		e.notifyOn(usn, ad, ip, ucast)
	}
}

func (e *Engine) notifyOn(usn string, ad Advertisement, source net.IP, ucast TargetedSend) {
	location := rewriteLocationHost(ad.Location, source)
	_ = ucast.SendWith(multicastAddr, source, func(b []byte) int {
		return BuildNotify(b, ad.NotificationType, usn, location)
	})
}

func (e *Engine) byebyeOnAll(usn, notificationType string, ucast TargetedSend) {
	for _, ip := range e.topo.liveIPs() {
		e.byebyeOn(usn, notificationType, ip, ucast)
	}
}

func (e *Engine) byebyeOn(usn, notificationType string, source net.IP, ucast TargetedSend) {
	_ = ucast.SendWith(multicastAddr, source, func(b []byte) int {
		return BuildByebye(b, notificationType, usn)
	})
}
