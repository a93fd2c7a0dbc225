package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePlayerNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 50)
	assert.Equal(t, strings.Repeat("a", 20), SanitizePlayerName(long, 20))
}

func TestSanitizePlayerNameTruncatesByRunes(t *testing.T) {
	name := SanitizePlayerName(strings.Repeat("ü", 30), 20)
	assert.Equal(t, 20, len([]rune(name)))
}

func TestSanitizePlayerNameEmptyGetsPlaceholder(t *testing.T) {
	for _, raw := range []string{"", "   ", "\x00\x01", "\t\n"} {
		name := SanitizePlayerName(raw, 20)
		assert.True(t, strings.HasPrefix(name, "Anon-"), "raw=%q got %q", raw, name)
		assert.Len(t, name, len("Anon-")+4)
	}
}

func TestSanitizePlayerNameStripsControlChars(t *testing.T) {
	assert.Equal(t, "alice", SanitizePlayerName("al\x00ice\x7f", 20))
}

func TestSanitizePlayerNameNormalizesNFC(t *testing.T) {
	// "e" + combining acute should collapse to a single composed rune.
	name := SanitizePlayerName("jose\u0301", 20)
	assert.Equal(t, "jos\u00e9", name)
	assert.Equal(t, 4, len([]rune(name)))
}

func TestSanitizePlayerNameKeepsCase(t *testing.T) {
	assert.Equal(t, "AlIcE", SanitizePlayerName("AlIcE", 20))
}
