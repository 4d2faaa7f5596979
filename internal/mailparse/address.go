package mailparse

import (
	"regexp"
	"strings"
)

var (
	embeddedAddress = regexp.MustCompile(`<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})>?`)
	bareAddress     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ExtractEmailAddress returns the bare address from input such as
// "Jane Doe <jane@example.com>" or "jane@example.com". The leftmost address
// wins. ok is false when input contains no usable address, in which case a
// message to it must not be sent.
func ExtractEmailAddress(input string) (addr string, ok bool) {
	if m := embeddedAddress.FindStringSubmatch(input); m != nil {
		return m[1], true
	}

	trimmed := strings.TrimSpace(input)
	if bareAddress.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}
