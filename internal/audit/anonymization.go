package audit

import (
	"net"
	"strings"
	"time"
)

// AnonymizationRetention is how long raw IP addresses are kept before being
// scrubbed from audit records.
const AnonymizationRetention = 90 * 24 * time.Hour

// AnonymizeIP anonymizes an IP address.
// For IPv4: replaces the last octet with 0 (e.g., 192.168.1.100 → 192.168.1.0)
// For IPv6: zeroes the last 80 bits.
// Returns an empty string if the input is invalid.
func AnonymizeIP(ipStr string) string {
	if ipStr == "" {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	if ip.To4() != nil {
		parts := strings.Split(ipStr, ".")
		if len(parts) != 4 {
			return ""
		}
		parts[3] = "0"
		return strings.Join(parts, ".")
	}

	ipBytes := []byte(ip.To16())
	if len(ipBytes) != 16 {
		return ""
	}
	for i := 6; i < 16; i++ {
		ipBytes[i] = 0
	}
	return net.IP(ipBytes).String()
}

// AnonymizationCutoff returns the time before which IP addresses should be
// anonymized.
func AnonymizationCutoff() time.Time {
	return time.Now().UTC().Add(-AnonymizationRetention)
}
