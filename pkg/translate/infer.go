package translate

import "strings"

// Type inference metadata tags.
const (
	TypeMAC    = "macaddr"
	TypeIPv6   = "ipv6addr"
	TypeLong   = "long"
	TypeIPv4   = "ipv4addr"
	TypeString = "string"
)

// inferType classifies an option value by character class and delimiter
// count, first match wins. The IPv6 rule accepts two or more colons so that
// compressed addresses like "fe80::1" classify correctly.
func inferType(v string) string {
	if v == "" {
		return TypeString
	}

	if isHexOrColon(v) {
		colons := strings.Count(v, ":")
		periods := strings.Count(v, ".")
		slashes := strings.Count(v, "/")
		if colons == 5 && periods == 0 && slashes == 0 {
			return TypeMAC
		}
		if colons >= 2 {
			return TypeIPv6
		}
	}

	if isDigitsOrDot(v) {
		periods := strings.Count(v, ".")
		if periods == 0 {
			return TypeLong
		}
		if periods == 3 {
			return TypeIPv4
		}
	}

	return TypeString
}

func isHexOrColon(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		case r == ':':
		default:
			return false
		}
	}
	return true
}

func isDigitsOrDot(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
