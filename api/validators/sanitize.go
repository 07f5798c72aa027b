package validators

import "strings"

// SanitizeString trims input and cuts it to at most maxLen characters.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	n := 0
	for i := range trimmed {
		if n == maxLen {
			return trimmed[:i]
		}
		n++
	}
	return trimmed
}
