package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Tag
	}{
		{"plain english", "hello, can you build my site", TagEnglish},
		{"empty", "", TagEnglish},
		{"telugu script", "మీ సేవలు ఏమిటి", TagTelugu},
		{"devanagari script", "आपकी सेवाएँ क्या हैं", TagHindi},
		{"telugu script wins over latin filler", "hello మీరు there", TagTelugu},
		{"romanized hindi keyword", "mujhe price chahiye", TagHindi},
		{"romanized hindi kya", "kya aap website banate ho", TagHindi},
		{"romanized telugu keyword", "meeru website chestara", TagTelugu},
		{"romanized telugu kavali", "naku website kavali", TagTelugu},
		{"keyword casing ignored", "MUJHE help CHAHIYE", TagHindi},
		{"no keyword match defaults", "bonjour tout le monde", TagEnglish},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Detect(tc.text))
		})
	}
}
