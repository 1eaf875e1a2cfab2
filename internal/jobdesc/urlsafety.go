package jobdesc

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// URLError is returned for URLs the importer refuses to fetch.
type URLError struct {
	URL    string
	Reason string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("job description URL blocked: %s", e.Reason)
}

// ValidateURL accepts only http/https URLs whose host resolves to public
// addresses. Hostnames are resolved so encoded loopback forms are caught.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &URLError{URL: rawURL, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &URLError{URL: rawURL, Reason: fmt.Sprintf("scheme %q not allowed, only http/https", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &URLError{URL: rawURL, Reason: "empty hostname"}
	}
	if isMetadataHost(host) {
		return &URLError{URL: rawURL, Reason: fmt.Sprintf("metadata hostname blocked: %s", host)}
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		ip := net.ParseIP(host)
		if ip == nil {
			return &URLError{URL: rawURL, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		ips = []net.IP{ip}
	}
	for _, ip := range ips {
		if reason := blockedIP(ip); reason != "" {
			L_debug("jobdesc: blocked address", "url", rawURL, "ip", ip.String(), "reason", reason)
			return &URLError{URL: rawURL, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip)}
		}
	}
	return nil
}

func blockedIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address"
	case ip.IsPrivate():
		return "private network address"
	case ip.IsLinkLocalUnicast():
		return "link-local address"
	case ip.IsMulticast(), ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast():
		return "multicast address"
	case ip.IsUnspecified():
		return "unspecified address"
	}
	if ip4 := ip.To4(); ip4 != nil && !ip.Equal(ip4) {
		if reason := blockedIP(ip4); reason != "" {
			return reason + " (IPv4-mapped)"
		}
	}
	return ""
}

func isMetadataHost(host string) bool {
	host = strings.ToLower(host)
	for _, mh := range []string{"metadata.google.internal", "metadata.goog", "metadata"} {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}
	return false
}
