package netfeed

import (
	"net"
	"syscall"
	"testing"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"ssdpkit/pkg/ssdp"
)

func TestTranslateLinkUpdateNewLink(t *testing.T) {
	u := netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: syscall.RTM_NEWLINK},
		Link: &netlink.Dummy{
			LinkAttrs: netlink.LinkAttrs{
				Name:     "eth0",
				Index:    4,
				Flags:    net.FlagUp | net.FlagMulticast | net.FlagBroadcast,
				RawFlags: syscall.IFF_RUNNING,
			},
		},
	}
	ev := translateLinkUpdate(u)
	if ev.Kind != ssdp.EventNewLink {
		t.Fatalf("kind = %v, want EventNewLink", ev.Kind)
	}
	if ev.Index != 4 || ev.Name != "eth0" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	want := ssdp.FlagUp | ssdp.FlagMulticast | ssdp.FlagBroadcast | ssdp.FlagRunning
	if ev.Flags != want {
		t.Fatalf("flags = %v, want %v", ev.Flags, want)
	}
}

func TestTranslateLinkUpdateDelLink(t *testing.T) {
	u := netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: syscall.RTM_DELLINK},
		Link: &netlink.Dummy{
			LinkAttrs: netlink.LinkAttrs{Name: "eth0", Index: 4},
		},
	}
	ev := translateLinkUpdate(u)
	if ev.Kind != ssdp.EventDelLink {
		t.Fatalf("kind = %v, want EventDelLink", ev.Kind)
	}
}

func TestTranslateAddrUpdateIgnoresIPv6(t *testing.T) {
	_, v6net, _ := net.ParseCIDR("fe80::1/64")
	u := netlink.AddrUpdate{
		LinkIndex:   4,
		NewAddr:     true,
		LinkAddress: *v6net,
	}
	if _, ok := translateAddrUpdate(u); ok {
		t.Fatal("IPv6 address update should be filtered out")
	}
}

func TestTranslateAddrUpdateAcceptsIPv4(t *testing.T) {
	_, v4net, _ := net.ParseCIDR("192.168.1.10/24")
	u := netlink.AddrUpdate{
		LinkIndex:   4,
		NewAddr:     true,
		LinkAddress: *v4net,
	}
	ev, ok := translateAddrUpdate(u)
	if !ok {
		t.Fatal("IPv4 address update should be accepted")
	}
	if ev.Kind != ssdp.EventNewAddr || ev.Index != 4 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateAddrUpdateDeletion(t *testing.T) {
	_, v4net, _ := net.ParseCIDR("192.168.1.10/24")
	u := netlink.AddrUpdate{
		LinkIndex:   4,
		NewAddr:     false,
		LinkAddress: *v4net,
	}
	ev, ok := translateAddrUpdate(u)
	if !ok || ev.Kind != ssdp.EventDelAddr {
		t.Fatalf("expected EventDelAddr, got %+v ok=%v", ev, ok)
	}
}
