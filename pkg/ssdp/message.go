// Package ssdp implements the transport-agnostic SSDP discovery engine:
// wire codec, refresh timer, interface topology, subscription registry,
// and the Engine that glues them together. The package never touches a
// socket; it is driven by a host program through the TargetedSend and
// Multicast capabilities (see transport.go) and the NetworkEvent feed
// (see netevent.go).
package ssdp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ServerName and ServerVersion populate the SSDP SERVER header.
const (
	ServerName    = "ssdpkit"
	ServerVersion = "1.0"

	// MulticastGroup and MulticastPort are the well-known SSDP rendezvous.
	MulticastGroup = "239.255.255.250"
	MulticastPort  = 1900

	// MaxDatagram is the safe UDP payload budget; builders never exceed it.
	MaxDatagram = 512
)

// Kind identifies which of the four HTTPU message shapes a Message holds.
type Kind int

const (
	KindNotifyAlive Kind = iota
	KindNotifyByeBye
	KindSearch
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindNotifyAlive:
		return "NotifyAlive"
	case KindNotifyByeBye:
		return "NotifyByeBye"
	case KindSearch:
		return "Search"
	case KindResponse:
		return "Response"
	default:
		return "Unknown"
	}
}

// Message is a tagged union over the four wire shapes in spec §3.1. Only
// the fields relevant to Kind are populated.
type Message struct {
	Kind Kind

	NotificationType  string // NotifyAlive, NotifyByeBye
	UniqueServiceName string // NotifyAlive, NotifyByeBye, Response
	Location          string // NotifyAlive, Response

	SearchTarget   string // Search, Response
	MaximumWaitSec uint8  // Search
}

// ParseError reports why a datagram was rejected by Parse.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ssdp: parse: %s", e.Reason)
}

var (
	errInvalidEncoding = &ParseError{Reason: "invalid encoding"}
	errMalformedFraming = &ParseError{Reason: "malformed framing"}
	errUnknownKind      = &ParseError{Reason: "unknown message kind"}
	errMissingHeader    = &ParseError{Reason: "missing required header"}
	errBadMxValue       = &ParseError{Reason: "bad MX value"}
)

// Parse decodes a UDP payload into a Message. It never panics and never
// reads past the end of buf.
func Parse(buf []byte) (Message, error) {
	if !utf8.Valid(buf) {
		return Message{}, errInvalidEncoding
	}
	packet := string(buf)

	lines := splitLines(packet)
	if len(lines) == 0 {
		return Message{}, errMalformedFraming
	}
	requestLine := lines[0]

	headers := make(map[string]string, len(lines))
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(key)] = strings.TrimSpace(value)
	}

	switch requestLine {
	case "NOTIFY * HTTP/1.1":
		switch headers["NTS"] {
		case "ssdp:alive":
			nt, hasNT := headers["NT"]
			usn, hasUSN := headers["USN"]
			loc, hasLoc := headers["LOCATION"]
			if hasNT && hasUSN && hasLoc {
				return Message{
					Kind:              KindNotifyAlive,
					NotificationType:  nt,
					UniqueServiceName: usn,
					Location:          loc,
				}, nil
			}
		case "ssdp:byebye":
			nt, hasNT := headers["NT"]
			usn, hasUSN := headers["USN"]
			if hasNT && hasUSN {
				return Message{
					Kind:              KindNotifyByeBye,
					NotificationType:  nt,
					UniqueServiceName: usn,
				}, nil
			}
		}
		return Message{}, errMissingHeader

	case "HTTP/1.1 200 OK":
		st, hasST := headers["ST"]
		usn, hasUSN := headers["USN"]
		loc, hasLoc := headers["LOCATION"]
		if hasST && hasUSN && hasLoc {
			return Message{
				Kind:              KindResponse,
				SearchTarget:      st,
				UniqueServiceName: usn,
				Location:          loc,
			}, nil
		}
		return Message{}, errMissingHeader

	case "M-SEARCH * HTTP/1.1":
		st, hasST := headers["ST"]
		mx, hasMX := headers["MX"]
		if hasST && hasMX {
			n, err := strconv.ParseUint(mx, 10, 8)
			if err != nil {
				return Message{}, errBadMxValue
			}
			return Message{
				Kind:           KindSearch,
				SearchTarget:   st,
				MaximumWaitSec: uint8(n),
			}, nil
		}
		return Message{}, errMissingHeader

	default:
		return Message{}, errUnknownKind
	}
}

// splitLines splits on "\n" and trims a trailing "\r" from each line,
// matching the line-ending tolerance of the original HTTPU framing.
func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		out = append(out, strings.TrimSuffix(l, "\r"))
	}
	return out
}

// BuildSearch writes an M-SEARCH datagram into buf and returns the number
// of bytes written.
func BuildSearch(buf []byte, searchTarget string) int {
	s := fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"HOST: %s:%d\r\n"+
			"MAN: \"ssdp:discover\"\r\n"+
			"MX: 5\r\n"+
			"ST: %s\r\n"+
			"\r\n",
		MulticastGroup, MulticastPort, searchTarget)
	return copy(buf, s)
}

// BuildResponse writes an HTTP/1.1 200 OK search response into buf.
func BuildResponse(buf []byte, searchTarget, usn, location string) int {
	s := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"CACHE-CONTROL: max-age=1800\r\n"+
			"ST: %s\r\n"+
			"USN: %s\r\n"+
			"LOCATION: %s\r\n"+
			"SERVER: UPnP/1.0 %s/%s\r\n"+
			"\r\n",
		searchTarget, usn, location, ServerName, ServerVersion)
	return copy(buf, s)
}

// BuildNotify writes a NOTIFY ssdp:alive datagram into buf.
func BuildNotify(buf []byte, notificationType, usn, location string) int {
	s := fmt.Sprintf(
		"NOTIFY * HTTP/1.1\r\n"+
			"HOST: %s:%d\r\n"+
			"CACHE-CONTROL: max-age=1800\r\n"+
			"LOCATION: %s\r\n"+
			"NT: %s\r\n"+
			"NTS: ssdp:alive\r\n"+
			"USN: %s\r\n"+
			"SERVER: UPnP/1.0 %s/%s\r\n"+
			"\r\n",
		MulticastGroup, MulticastPort, location, notificationType, usn,
		ServerName, ServerVersion)
	return copy(buf, s)
}

// BuildByebye writes a NOTIFY ssdp:byebye datagram into buf.
func BuildByebye(buf []byte, notificationType, usn string) int {
	s := fmt.Sprintf(
		"NOTIFY * HTTP/1.1\r\n"+
			"HOST: %s:%d\r\n"+
			"CACHE-CONTROL: max-age=1800\r\n"+
			"NT: %s\r\n"+
			"NTS: ssdp:byebye\r\n"+
			"USN: %s\r\n"+
			"SERVER: UPnP/1.0 %s/%s\r\n"+
			"\r\n",
		MulticastGroup, MulticastPort, notificationType, usn,
		ServerName, ServerVersion)
	return copy(buf, s)
}
