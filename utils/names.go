// utils/names.go
package utils

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SanitizePlayerName normalizes a presser identifier: NFC-normalize, strip
// control characters, trim whitespace, truncate to maxRunes. A name that
// ends up empty becomes an anonymized placeholder — identifiers are never
// rejected outright.
func SanitizePlayerName(raw string, maxRunes int) string {
	name := norm.NFC.String(raw)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" {
		return "Anon-" + uuid.NewString()[:4]
	}

	runes := []rune(name)
	if len(runes) > maxRunes {
		name = string(runes[:maxRunes])
	}
	return name
}
