package sparql

import "strings"

// ValidIRI reports whether s can be embedded as an IRI term in a query or
// update. It requires an absolute IRI (a scheme followed by a colon) and
// rejects every character the IRIREF production forbids, so an interpolated
// identifier cannot terminate its <...> delimiters early.
func ValidIRI(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return false
	}
	for i := 0; i < colon; i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	for _, r := range s {
		if r <= 0x20 {
			return false
		}
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\':
			return false
		}
	}
	return true
}
