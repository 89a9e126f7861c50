// Package netfeed translates Linux rtnetlink link/address events into
// ssdp.NetworkEvent values. It is the only piece of ssdpkit that talks
// to the kernel's network configuration directly; everything else sees
// the engine's transport-agnostic NetworkEvent shape.
package netfeed

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/vishvananda/netlink"

	"ssdpkit/pkg/ssdp"
)

// Feed produces a stream of ssdp.NetworkEvent values from netlink link
// and address updates, after an initial snapshot of existing state.
type Feed struct{}

// New returns a Feed backed by the host's rtnetlink socket.
func New() *Feed { return &Feed{} }

// Snapshot returns a NewLink event for every interface currently present,
// followed by a NewAddr event for each of its IPv4 addresses, so a freshly
// started engine sees the network as it already stood.
func (f *Feed) Snapshot() ([]ssdp.NetworkEvent, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netfeed: list links: %w", err)
	}

	var events []ssdp.NetworkEvent
	for _, link := range links {
		attrs := link.Attrs()
		events = append(events, ssdp.NetworkEvent{
			Kind:  ssdp.EventNewLink,
			Index: ssdp.InterfaceIndex(attrs.Index),
			Name:  attrs.Name,
			Flags: translateFlags(attrs.Flags, attrs.RawFlags),
		})

		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("netfeed: list addrs for %s: %w", attrs.Name, err)
		}
		for _, addr := range addrs {
			ones, _ := addr.IPNet.Mask.Size()
			events = append(events, ssdp.NetworkEvent{
				Kind:      ssdp.EventNewAddr,
				Index:     ssdp.InterfaceIndex(attrs.Index),
				Addr:      addr.IPNet.IP,
				PrefixLen: ones,
			})
		}
	}
	return events, nil
}

// Run subscribes to live netlink updates and forwards them on events as
// ssdp.NetworkEvent values until ctx is canceled. IPv6 address updates
// are filtered out here, at the boundary, rather than relied upon to be
// dropped downstream (testable property 8).
func (f *Feed) Run(ctx context.Context, events chan<- ssdp.NetworkEvent) error {
	linkUpdates := make(chan netlink.LinkUpdate)
	addrUpdates := make(chan netlink.AddrUpdate)
	done := make(chan struct{})
	defer close(done)

	if err := netlink.LinkSubscribe(linkUpdates, done); err != nil {
		return fmt.Errorf("netfeed: subscribe links: %w", err)
	}
	if err := netlink.AddrSubscribe(addrUpdates, done); err != nil {
		return fmt.Errorf("netfeed: subscribe addrs: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case u, ok := <-linkUpdates:
			if !ok {
				return fmt.Errorf("netfeed: link update channel closed")
			}
			ev := translateLinkUpdate(u)
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}

		case u, ok := <-addrUpdates:
			if !ok {
				return fmt.Errorf("netfeed: addr update channel closed")
			}
			ev, ok := translateAddrUpdate(u)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func translateLinkUpdate(u netlink.LinkUpdate) ssdp.NetworkEvent {
	attrs := u.Link.Attrs()
	kind := ssdp.EventNewLink
	if u.Header.Type == syscall.RTM_DELLINK {
		kind = ssdp.EventDelLink
	}
	return ssdp.NetworkEvent{
		Kind:  kind,
		Index: ssdp.InterfaceIndex(attrs.Index),
		Name:  attrs.Name,
		Flags: translateFlags(attrs.Flags, attrs.RawFlags),
	}
}

// translateAddrUpdate reports ok=false for IPv6 addresses, which the
// engine never tracks (spec §3.6).
func translateAddrUpdate(u netlink.AddrUpdate) (ssdp.NetworkEvent, bool) {
	if u.LinkAddress.IP.To4() == nil {
		return ssdp.NetworkEvent{}, false
	}
	kind := ssdp.EventNewAddr
	if !u.NewAddr {
		kind = ssdp.EventDelAddr
	}
	ones, _ := u.LinkAddress.Mask.Size()
	return ssdp.NetworkEvent{
		Kind:      kind,
		Index:     ssdp.InterfaceIndex(u.LinkIndex),
		Addr:      u.LinkAddress.IP,
		PrefixLen: ones,
	}, true
}

// translateFlags maps net.Flags (carried on LinkAttrs.Flags) plus the raw
// IFF_RUNNING bit (not represented in net.Flags) onto ssdp.Flags.
func translateFlags(flags net.Flags, raw uint32) ssdp.Flags {
	var f ssdp.Flags
	if flags&net.FlagUp != 0 {
		f |= ssdp.FlagUp
	}
	if raw&syscall.IFF_RUNNING != 0 {
		f |= ssdp.FlagRunning
	}
	if flags&net.FlagBroadcast != 0 {
		f |= ssdp.FlagBroadcast
	}
	if flags&net.FlagLoopback != 0 {
		f |= ssdp.FlagLoopback
	}
	if flags&net.FlagPointToPoint != 0 {
		f |= ssdp.FlagPointToPoint
	}
	if flags&net.FlagMulticast != 0 {
		f |= ssdp.FlagMulticast
	}
	return f
}
