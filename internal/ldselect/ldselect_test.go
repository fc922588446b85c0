package ldselect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPicksTopFeaturesPerLanguage(t *testing.T) {
	igLang := map[string][]float64{
		"a": {0.9, 0.1},
		"b": {0.5, 0.5},
		"c": {0.1, 0.9},
	}
	igDomain := map[string]float64{"a": 0, "b": 0, "c": 0}

	perLang, union := Select(igLang, igDomain, 2, Options{FeaturesPerLang: 1})
	require.Len(t, perLang, 2)
	assert.Equal(t, [][]byte{[]byte("a")}, perLang[0])
	assert.Equal(t, [][]byte{[]byte("c")}, perLang[1])
	assert.ElementsMatch(t, [][]byte{[]byte("a"), []byte("c")}, union)
}

func TestSelectDomainPenaltyReducesScore(t *testing.T) {
	igLang := map[string][]float64{
		"a": {0.9},
		"b": {0.9},
	}
	igDomain := map[string]float64{"a": 0.8, "b": 0.0}

	perLang, _ := Select(igLang, igDomain, 1, Options{FeaturesPerLang: 1})
	// "a" has the same per-language IG as "b" but a higher domain
	// penalty, so "b" should win the single slot.
	assert.Equal(t, [][]byte{[]byte("b")}, perLang[0])
}

func TestSelectIgnoreDomainSkipsPenalty(t *testing.T) {
	igLang := map[string][]float64{
		"a": {0.9},
		"b": {0.9},
	}
	igDomain := map[string]float64{"a": 0.8, "b": 0.0}

	perLang, _ := Select(igLang, igDomain, 1, Options{FeaturesPerLang: 2, IgnoreDomain: true})
	require.Len(t, perLang[0], 2)
	// Tied scores with domain ignored; lexicographic tie-break orders "a" first.
	assert.Equal(t, []byte("a"), perLang[0][0])
}

func TestSelectTieBreaksLexicographically(t *testing.T) {
	igLang := map[string][]float64{
		"zz": {0.5},
		"aa": {0.5},
	}
	igDomain := map[string]float64{"zz": 0, "aa": 0}

	perLang, _ := Select(igLang, igDomain, 1, Options{FeaturesPerLang: 1})
	assert.Equal(t, []byte("aa"), perLang[0][0])
}

func TestSelectCapsAtAvailableCandidates(t *testing.T) {
	igLang := map[string][]float64{"a": {0.5}}
	igDomain := map[string]float64{"a": 0}

	perLang, union := Select(igLang, igDomain, 1, Options{FeaturesPerLang: 10})
	assert.Len(t, perLang[0], 1)
	assert.Len(t, union, 1)
}

func TestWritePerLangProducesOneLinePerLanguage(t *testing.T) {
	perLang := [][][]byte{
		{[]byte("a"), []byte("b")},
		{[]byte("c")},
	}
	path := filepath.Join(t.TempDir(), "LDfeats.perlang")
	require.NoError(t, WritePerLang(path, perLang))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"a\" \"b\"\n\"c\"\n", string(content))
}
