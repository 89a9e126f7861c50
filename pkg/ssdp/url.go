package ssdp

import "net/url"

// rewriteURLHost replaces the host component of rawURL with newHost,
// preserving scheme, port, path, and query. If rawURL does not parse as
// a URL it is returned unchanged — a malformed advertised location is
// the advertiser's problem, not a reason for the engine to drop the
// packet it's responding to.
func rewriteURLHost(rawURL, newHost string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = newHost + ":" + port
	} else {
		u.Host = newHost
	}
	return u.String()
}
