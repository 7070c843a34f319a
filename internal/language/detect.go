// Package language tags inbound messages with an advisory language code for
// UI labeling. Detection is deterministic: Unicode script blocks first, then
// romanized keyword lists, defaulting to English. The tag never alters what
// is sent to the completion service.
package language

import (
	"strings"
	"unicode"
)

// Tag is a closed language enumeration.
type Tag string

const (
	TagEnglish Tag = "en"
	TagTelugu  Tag = "te"
	TagHindi   Tag = "hi"
)

// scriptChecks are scanned in priority order; the first block containing any
// rune of the input wins.
var scriptChecks = []struct {
	tag   Tag
	table *unicode.RangeTable
}{
	{TagTelugu, unicode.Telugu},
	{TagHindi, unicode.Devanagari},
}

// Keyword lists are preserved configuration data, not an idealized model.
// They are small and occasionally ambiguous on purpose.
var keywordChecks = []struct {
	tag      Tag
	keywords []string
}{
	{TagHindi, []string{"mujhe", "chahiye", "kya", "hai", "karna", "paisa"}},
	{TagTelugu, []string{"meeru", "nenu", "cheyandi", "kavali", "enti", "kosam"}},
}

// Detect classifies text into a Tag. A single rune from a known script block
// decides the result regardless of any accompanying Latin text.
func Detect(text string) Tag {
	for _, sc := range scriptChecks {
		for _, r := range text {
			if unicode.Is(sc.table, r) {
				return sc.tag
			}
		}
	}

	lower := strings.ToLower(text)
	for _, kc := range keywordChecks {
		for _, kw := range kc.keywords {
			if strings.Contains(lower, kw) {
				return kc.tag
			}
		}
	}

	return TagEnglish
}
