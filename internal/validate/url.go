package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URL validation errors
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrSSRFRisk         = errors.New("URL resolves to a private address")
)

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string
	BlockPrivate   bool // Reject hosts resolving to private/local addresses
	MaxLength      int  // Maximum URL length (0 = no limit)
}

// URL validates a URL against the given constraints and returns the trimmed
// URL string.
func URL(urlStr string, constraints URLConstraints) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", ErrEmpty
	}
	if constraints.MaxLength > 0 && len(urlStr) > constraints.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrStringTooLong, constraints.MaxLength)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if len(constraints.AllowedSchemes) > 0 {
		allowed := false
		for _, scheme := range constraints.AllowedSchemes {
			if parsed.Scheme == scheme {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsed.Scheme, constraints.AllowedSchemes)
		}
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	if constraints.BlockPrivate {
		if err := checkSSRF(hostname); err != nil {
			return "", err
		}
	}

	return urlStr, nil
}

// RedirectURL validates a client-supplied checkout return URL. These URLs
// are forwarded to the payment provider, which will send the customer's
// browser to them, so they must be public HTTPS endpoints.
func RedirectURL(urlStr string) (string, error) {
	return URL(urlStr, URLConstraints{
		AllowedSchemes: []string{"https"},
		BlockPrivate:   true,
		MaxLength:      2048,
	})
}

// VideoURL validates an exercise demo video link. HTTP is tolerated for
// self-hosted content but private hosts are still rejected.
func VideoURL(urlStr string) (string, error) {
	return URL(urlStr, URLConstraints{
		AllowedSchemes: []string{"https", "http"},
		BlockPrivate:   true,
		MaxLength:      2048,
	})
}

// checkSSRF rejects hostnames that point at loopback, link-local, or
// private address space.
func checkSSRF(hostname string) error {
	lower := strings.ToLower(hostname)
	if lower == "localhost" || lower == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost not allowed", ErrSSRFRisk)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Unresolvable hosts are allowed through; the provider will surface
		// the failure when it tries to redirect.
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrSSRFRisk, ip.String())
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		}
		return false
	}

	// fc00::/7 unique local addresses
	return len(ip) == 16 && (ip[0]&0xfe) == 0xfc
}
