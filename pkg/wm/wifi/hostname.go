package wifi

import (
	"fmt"
	"net"
	"strings"
)

const (
	HostnamePrefix = "FERMION"
	HostnameMaxLen = 24
)

// Hostname derives FERMION-XXYYZZ from the last three bytes of mac.
func Hostname(mac net.HardwareAddr) string {
	if len(mac) < 3 {
		return HostnamePrefix
	}
	tail := mac[len(mac)-3:]
	return fmt.Sprintf("%s-%02X%02X%02X", HostnamePrefix, tail[0], tail[1], tail[2])
}

// RFC952 keeps letters, digits and '-' (the first character must be a
// letter), cuts at HostnameMaxLen and drops trailing dashes.
func RFC952(name string) string {
	var b strings.Builder
	for _, c := range name {
		if b.Len() >= HostnameMaxLen {
			break
		}
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		switch {
		case isAlpha:
			b.WriteRune(c)
		case b.Len() == 0:
		case isDigit || c == '-':
			b.WriteRune(c)
		}
	}
	return strings.TrimRight(b.String(), "-")
}
