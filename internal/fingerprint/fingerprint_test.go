package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "quake rattles coast town hit", Normalize("  Quake rattles coast,   town hit! "))
	assert.Equal(t, "", Normalize("--- ..."))
	assert.Equal(t, "magnitude 6 quake", Normalize("Magnitude-6 quake"))
}

func TestStem(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"hits":      "hit",
		"rattles":   "rattle",
		"cities":    "city",
		"announced": "announc",
		"striking":  "strik",
		"press":     "press",
		"census":    "census",
		"town":      "town",
		"gas":       "gas",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), in)
	}
}

func TestContentTokensDropsStopwordsAndNumbers(t *testing.T) {
	t.Parallel()

	got := ContentTokens(Words("Coastal town struck by magnitude 6 quake, 2024 update"))
	assert.Equal(t, []string{"coastal", "town", "struck", "magnitude", "quake"}, got)
}

func TestGeneratorAnalyze(t *testing.T) {
	t.Parallel()

	g := NewGenerator(3, 2, 6)
	f := g.Analyze("Earthquake hits coastal town")

	assert.Equal(t, "earthquake hits coastal town", f.Normalized)
	assert.Equal(t, []string{"earthquake", "hit", "coastal", "town"}, f.Stems)
	assert.Equal(t, []string{"earthquake", "coastal", "town"}, f.Fingerprint.Keywords)
	assert.Empty(t, f.Entities)
	require.Len(t, f.Fingerprint.Hash, 6)
}

func TestHashIgnoresKeywordOrder(t *testing.T) {
	t.Parallel()

	g := NewGenerator(2, 0, 6)
	a := g.Generate("Senate budget vote")
	b := g.Generate("Budget senate vote")
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Hash, g.Generate("Wildfire evacuation orders").Hash)
}

func TestEntities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  []string
	}{
		{"Apple unveils new iPhone in Cupertino", []string{"iphone", "cupertino"}},
		{"NASA delays Artemis launch", []string{"nasa", "artemis"}},
		{"Earthquake Hits Coastal Town In Japan", nil},
		{"Fed Chair Powell Speaks As NATO Meets", []string{"nato"}},
		{"Markets slide as Tesla shares fall", []string{"tesla"}},
		{"Markets slide: Tesla shares fall", nil},
		{"quake rattles coast, town hit", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Entities(tc.title), tc.title)
	}
}

func TestGeneratorCapsEntities(t *testing.T) {
	t.Parallel()

	g := NewGenerator(3, 1, 4)
	f := g.Analyze("Talks between Biden and Macron in Paris stall")
	assert.Equal(t, []string{"biden", "macron", "paris"}, f.Entities)
	assert.Equal(t, []string{"biden"}, f.Fingerprint.Entities)
	assert.Len(t, f.Fingerprint.Hash, 4)
}
