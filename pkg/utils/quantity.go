package utils

import (
	"strconv"
	"strings"
)

// ParseQuantity parses a raw contract quantity: a 0x-prefixed hexadecimal
// string (leading zero padding allowed) or a plain decimal string.
func ParseQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		h := strings.TrimLeft(s[2:], "0")
		if h == "" {
			return 0, nil
		}
		return strconv.ParseUint(h, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// DisplayNumeric parses a display-formatted decimal that may carry digit
// group separators (comma, underscore, space). The second return reports
// whether the string was numeric at all.
func DisplayNumeric(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '_' || r == ' ':
		default:
			return 0, false
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
