package interceptor

import (
	"net"
	"strings"
)

// ResolveClientIP returns the best-available origin address for logging.
// The left-most X-Forwarded-For entry wins; otherwise the directly
// connected peer is used. The result is advisory and must never drive
// access-control decisions.
func ResolveClientIP(forwardedFor, peerAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if peerAddr == "" {
		return unknown
	}
	if host, _, err := net.SplitHostPort(peerAddr); err == nil {
		return host
	}
	return peerAddr
}
