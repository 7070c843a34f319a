package usecase

import "strings"

// leadKeywords is preserved configuration data. The list is deliberately
// small and hand-picked; "contact" overlapping other intents is a known and
// accepted ambiguity, not a bug to fix here.
var leadKeywords = []string{"price", "cost", "website", "quotation", "contact", "budget"}

// matchesLead reports whether text shows commercial intent. Matching is a
// case-insensitive substring test against leadKeywords.
func matchesLead(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range leadKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
