package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// defangedDot matches the bracketed dot notations used to neutralise IOCs in reports
	defangedDot = regexp.MustCompile(`(?i)\[\.\]|\[dot\]|\(dot\)|\(\.\)`)

	// dottedRun matches a maximal run of digit groups joined by dots
	dottedRun = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)+`)
)

// Refang replaces [.] [dot] (dot) and (.) with a literal dot, case-insensitively.
// Replacement is repeated until nothing changes so nested forms such as "[[.]]"
// also collapse, which keeps Refang idempotent.
func Refang(text string) string {
	for {
		next := defangedDot.ReplaceAllLiteralString(text, ".")
		if next == text {
			return next
		}
		text = next
	}
}

// ExtractIPv4Addresses refangs text and returns every IPv4 literal in it,
// deduplicated in first-seen order.
//
// A candidate must be a whole token: exactly four dot-separated groups with no
// further digit groups attached and no word character on either side. Every
// octet must be 1-3 digits with a value of at most 255, otherwise the whole
// token is rejected (there are no partial matches).
func ExtractIPv4Addresses(text string) []string {
	cleaned := Refang(text)

	seen := make(map[string]struct{})
	var result []string
	for _, loc := range dottedRun.FindAllStringIndex(cleaned, -1) {
		if !isTokenBoundary(cleaned, loc[0]-1) || !isTokenBoundary(cleaned, loc[1]) {
			continue
		}
		candidate := cleaned[loc[0]:loc[1]]
		if !isDottedQuad(candidate) {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		result = append(result, candidate)
	}
	return result
}

func isDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// isTokenBoundary reports whether position i is outside s or holds a non-word byte.
func isTokenBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return false
	}
	return true
}
