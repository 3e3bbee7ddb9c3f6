// Package identity derives the stable client identifier that every
// rate-limit key is scoped to.
package identity

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ForwardedForHeader is the proxy header honored for client identity.
const ForwardedForHeader = "X-Forwarded-For"

// FromRequest returns the client identity for a request: the left-most
// well-formed address in X-Forwarded-For when present, otherwise the peer
// address. Malformed header entries are skipped, never rejected. This is the
// single canonical derivation; every rate-limit key uses its result verbatim.
func FromRequest(r *http.Request) string {
	if xff := r.Header.Get(ForwardedForHeader); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip, ok := parseAddr(strings.TrimSpace(part)); ok {
				return ip
			}
		}
	}
	return peerAddr(r.RemoteAddr)
}

// parseAddr validates and normalizes one address, with or without a port.
func parseAddr(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().String(), true
	}
	return "", false
}

// peerAddr strips the port from a RemoteAddr, falling back to the raw value
// when it is not host:port shaped.
func peerAddr(remoteAddr string) string {
	if ip, ok := parseAddr(remoteAddr); ok {
		return ip
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
