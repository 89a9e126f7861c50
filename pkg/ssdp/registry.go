package ssdp

import "net"

// Advertisement is a locally-hosted resource the engine announces to the
// network (spec §3.4). Location is rewritten per-outbound-packet so its
// host component always names the interface address the packet left on.
type Advertisement struct {
	NotificationType string
	Location         string
}

// NotificationKind discriminates the two notification shapes a
// subscriber's Callback can receive.
type NotificationKind int

const (
	NotificationAlive NotificationKind = iota
	NotificationByeBye
)

// Notification is delivered to a subscriber's Callback from inside
// Engine.OnData. A Response datagram is delivered as an Alive
// notification (spec §4.5).
type Notification struct {
	Kind              NotificationKind
	NotificationType  string
	UniqueServiceName string
	Location          string // NotificationAlive only
}

// Callback receives notifications for a subscription. Implementations
// must not re-enter the Engine (spec §5): they run synchronously on the
// goroutine that called OnData.
type Callback interface {
	OnNotification(n Notification)
}

// SubscriptionKey is an opaque handle returned by Subscribe, used to
// remove the subscription later.
type SubscriptionKey uint64

type activeSearch struct {
	notificationType string
	callback         Callback
}

// registry holds the set of active searches and locally-advertised
// resources (spec §3.3, §3.4, §4.4).
type registry struct {
	searches       map[SubscriptionKey]*activeSearch
	nextKey        SubscriptionKey
	advertisements map[string]Advertisement
}

func newRegistry() registry {
	return registry{
		searches:       make(map[SubscriptionKey]*activeSearch),
		advertisements: make(map[string]Advertisement),
	}
}

// addSearch records a new active search and returns its removal key. The
// caller is responsible for sending the initial one-shot M-SEARCH salvo.
func (r *registry) addSearch(notificationType string, cb Callback) SubscriptionKey {
	r.nextKey++
	key := r.nextKey
	r.searches[key] = &activeSearch{notificationType: notificationType, callback: cb}
	return key
}

// removeSearch drops a subscription. Removing an unknown key is a no-op.
func (r *registry) removeSearch(key SubscriptionKey) {
	delete(r.searches, key)
}

// ssdpAll is the wildcard search/notification target (spec GLOSSARY, §4.5).
const ssdpAll = "ssdp:all"

// hasAllSearch reports whether any active search holds the ssdp:all
// wildcard; when true, a salvo emits exactly one M-SEARCH for it and
// skips every other active search (spec §4.5, testable property 5).
func (r *registry) hasAllSearch() bool {
	for _, s := range r.searches {
		if s.notificationType == ssdpAll {
			return true
		}
	}
	return false
}

// searchTargets returns the notification_type values a salvo must emit
// one M-SEARCH for: just ssdp:all if any search holds it, otherwise one
// entry per active search (duplicates included).
func (r *registry) searchTargets() []string {
	if r.hasAllSearch() {
		return []string{ssdpAll}
	}
	targets := make([]string, 0, len(r.searches))
	for _, s := range r.searches {
		targets = append(targets, s.notificationType)
	}
	return targets
}

// callSubscribers delivers n to every active search whose
// notification_type matches n's (spec §4.5 "inbound datagram processing").
func (r *registry) callSubscribers(n Notification) {
	for _, s := range r.searches {
		if targetMatch(s.notificationType, n.NotificationType) {
			s.callback.OnNotification(n)
		}
	}
}

// setAdvertisement inserts or replaces the advertisement for usn.
func (r *registry) setAdvertisement(usn string, ad Advertisement) {
	r.advertisements[usn] = ad
}

// removeAdvertisement deletes usn's advertisement, reporting whether one
// existed. Deadvertising an unknown USN is a silent no-op (spec §7).
func (r *registry) removeAdvertisement(usn string) (Advertisement, bool) {
	ad, ok := r.advertisements[usn]
	if ok {
		delete(r.advertisements, usn)
	}
	return ad, ok
}

// rewriteLocationHost returns location with its host component replaced
// by host, implementing the "responders see a reachable URL" requirement
// (spec §4.4, §4.5, testable property 6). Locations that fail to parse
// as a URL are returned unchanged; the engine never treats this as fatal.
func rewriteLocationHost(location string, host net.IP) string {
	return rewriteURLHost(location, host.String())
}
