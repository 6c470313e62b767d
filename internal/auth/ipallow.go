// ABOUTME: IP allow-list checking and proxy-aware client address resolution.
// ABOUTME: Supports single addresses and CIDR ranges, X-Forwarded-For when trusted.

package auth

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AllowList restricts callers to a configured set of addresses or CIDR
// ranges. A nil or empty AllowList admits every address.
type AllowList struct {
	prefixes []netip.Prefix
}

// ParseAllowList builds an AllowList from entries that may be single
// IPs ("10.0.0.5") or CIDR ranges ("10.0.0.0/8"). Invalid entries are
// rejected rather than skipped, so a typo cannot silently open access.
func ParseAllowList(entries []string) (*AllowList, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	al := &AllowList{}
	for _, raw := range entries {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("invalid ip %q in whitelist: %w", s, err)
			}
			al.prefixes = append(al.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q in whitelist: %w", s, err)
		}
		al.prefixes = append(al.prefixes, prefix.Masked())
	}

	if len(al.prefixes) == 0 {
		return nil, nil
	}
	return al, nil
}

// Allowed reports whether the address passes the list. Unparseable
// addresses are refused.
func (al *AllowList) Allowed(addr string) bool {
	if al == nil || len(al.prefixes) == 0 {
		return true
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range al.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientAddr resolves the request's client IP. When trustProxy is set,
// the left-most X-Forwarded-For entry wins, then X-Real-IP; otherwise
// only the socket address is used.
func ClientAddr(r *http.Request, trustProxy bool, logger *slog.Logger) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if isValidIP(first) {
				return stripPort(first)
			}
			if logger != nil {
				logger.Debug("ignoring malformed X-Forwarded-For", "value", fwd)
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" && isValidIP(real) {
			return stripPort(real)
		}
	}
	return stripPort(r.RemoteAddr)
}

// stripPort removes a :port suffix if present, handling bracketed IPv6.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func isValidIP(s string) bool {
	_, err := netip.ParseAddr(stripPort(s))
	return err == nil
}
