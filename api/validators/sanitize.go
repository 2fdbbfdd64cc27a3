package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeFileName keeps the base name of a client-supplied file name, drops
// control characters and truncates to maxLen bytes without splitting a rune.
func SanitizeFileName(input string, maxLen int) string {
	name := strings.ReplaceAll(strings.TrimSpace(input), "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if maxLen > 0 && len(name) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}
