package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync/atomic"

	"koin/internal/log"
)

// DetectorConfig tunes which requests are treated as scanner traffic.
type DetectorConfig struct {
	// TrustedProxies lists the CIDRs whose forwarding headers are honored.
	TrustedProxies []string
	MaxURLLength   int
	MaxForwardHops int
}

// DefaultDetectorConfig trusts loopback and the private ranges.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		TrustedProxies: []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"},
		MaxURLLength:   2048,
		MaxForwardHops: 5,
	}
}

// Detector rejects probing requests and resolves the real client address.
type Detector struct {
	trusted []netip.Prefix
	maxURL  int
	maxHops int
	flagged atomic.Int64
	blocked atomic.Int64
}

var (
	scanFragments = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}
	rejectedMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// NewDetector panics on a malformed CIDR in cfg.
func NewDetector(cfg DetectorConfig) *Detector {
	d := &Detector{maxURL: cfg.MaxURLLength, maxHops: cfg.MaxForwardHops}
	for _, cidr := range cfg.TrustedProxies {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// AddTrustedProxy must be called before serving.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trusted = append(d.trusted, p.Masked())
	return nil
}

// Inspect returns why r looks like scanner traffic, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	reason := d.inspect(r)
	if reason != "" {
		d.flagged.Add(1)
	}
	return reason
}

func (d *Detector) inspect(r *http.Request) string {
	switch {
	case slices.Contains(rejectedMethods, r.Method):
		return "method"
	case matchesAny(r.URL.Path, scanFragments):
		return "path"
	case matchesAny(r.URL.RawQuery, scanFragments):
		return "query"
	case matchesAny(r.Header.Get("User-Agent"), scannerAgents):
		return "user-agent"
	case d.maxURL > 0 && len(r.URL.String()) > d.maxURL:
		return "url-length"
	case d.maxHops > 0 && strings.Count(r.Header.Get("X-Forwarded-For"), ",") > d.maxHops:
		return "forward-hops"
	}
	return ""
}

func matchesAny(s string, fragments []string) bool {
	s = strings.ToLower(s)
	return slices.ContainsFunc(fragments, func(f string) bool { return strings.Contains(s, f) })
}

// Middleware answers scanner traffic with 404 without reaching next.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			d.blocked.Add(1)
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
				"reason", reason,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ExtractClientIP(r))
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.trustedPeer(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.String()
		}
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.String()
	}
	return host
}

func (d *Detector) trustedPeer(a netip.Addr) bool {
	a = a.Unmap()
	return slices.ContainsFunc(d.trusted, func(p netip.Prefix) bool { return p.Contains(a) })
}

// DetectionStats counts flagged and blocked requests.
type DetectionStats struct {
	Suspicious int64
	Blocked    int64
}

func (d *Detector) Stats() DetectionStats {
	return DetectionStats{Suspicious: d.flagged.Load(), Blocked: d.blocked.Load()}
}
