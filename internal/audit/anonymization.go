package audit

import (
	"net"
	"strings"
	"time"
)

// AnonymizeIP strips the host-identifying portion of an IP address.
// IPv4 addresses get the last octet zeroed (192.168.1.100 -> 192.168.1.0),
// IPv6 addresses keep the first 48 bits and zero the rest.
// Returns the empty string when the input does not parse.
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
	// Zero out bytes 6-15 (last 80 bits).
	for i := 6; i < 16; i++ {
		ipBytes[i] = 0
	}
	return net.IP(ipBytes).String()
}

// IPAnonymizationCutoff returns the timestamp before which stored IP
// addresses must be anonymized. The retention window is 90 days.
func IPAnonymizationCutoff() time.Time {
	return time.Now().UTC().Add(-90 * 24 * time.Hour)
}
