package security

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	applog "cashly/internal/log"
)

var (
	probePaths = []string{
		"../", "..\\", "/.env", "wp-admin", "wp-login", "phpmyadmin",
		".php", "/.git", "/.ssh", "etc/passwd", "cmd.exe", "cgi-bin",
	}
	probeQuery = []string{
		"../", "<script", "javascript:", "union select", "etc/passwd",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirbuster", "masscan", "zgrab",
	}
)

// Detector recognises common probe traffic and resolves client IPs behind
// trusted proxies.
type Detector struct {
	trustedProxies []*net.IPNet
	onSuspicious   func()
}

// NewDetector trusts loopback and private ranges. onSuspicious may be nil.
func NewDetector(onSuspicious func()) *Detector {
	d := &Detector{onSuspicious: onSuspicious}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, network, _ := net.ParseCIDR(cidr)
		d.trustedProxies = append(d.trustedProxies, network)
	}
	return d
}

// Suspicious reports whether r looks like a scanner or path probe.
func (d *Detector) Suspicious(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	for _, p := range probePaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range probeQuery {
		if strings.Contains(query, p) {
			return true
		}
	}
	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return true
		}
	}
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return true
	}
	return len(r.URL.RequestURI()) > 2048
}

// Middleware logs and counts probe requests, answering them with 404.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Suspicious(r) {
			if d.onSuspicious != nil {
				d.onSuspicious()
			}
			slog.WarnContext(r.Context(), "Suspicious request blocked",
				applog.FieldComponent, applog.ComponentSecurity,
				"client_ip", d.ClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the peer address, or the first forwarded address when the
// peer is a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.trusted(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) trusted(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
