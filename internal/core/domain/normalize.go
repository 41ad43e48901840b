package domain

import (
	"strings"
)

// NormalizeIOCValue normalizes IOC values for better matching
func NormalizeIOCValue(value string, iocType IOCType) string {
	value = strings.TrimSpace(value)

	switch iocType.Kind() {
	case KindIPv4, KindIPv6:
		return strings.ToLower(Refang(value))

	case KindDomain:
		// Lowercase domain, drop the root label
		return strings.TrimSuffix(strings.ToLower(Refang(value)), ".")

	case KindFileHash:
		return strings.ToLower(value)

	default:
		// URLs keep their case: paths and queries are case-sensitive
		return value
	}
}
