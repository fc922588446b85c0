// Package ldselect implements the LD selector (spec §4.G): it combines
// per-language and (optionally) per-domain Information Gain into a
// per-language ranking, keeps the top features per language, and unions
// the result into the final feature set.
package ldselect

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
)

// Options configures LD selection.
type Options struct {
	FeaturesPerLang int
	IgnoreDomain    bool // spec §4.G "ignore_domain": score(f) = IG_lang(f)
}

type scored struct {
	feature []byte
	score   float64
}

// Select combines igLang (feature -> per-language IG vector, one entry
// per language index) with igDomain (feature -> scalar domain IG) into a
// per-language score, keeps the top FeaturesPerLang features for each
// language (descending score, lexicographic tie-break), and returns both
// the per-language lists and their set-union (spec §4.G "Output").
func Select(igLang map[string][]float64, igDomain map[string]float64, numLangs int, opts Options) (perLang [][][]byte, union [][]byte) {
	perLang = make([][][]byte, numLangs)

	for l := 0; l < numLangs; l++ {
		candidates := make([]scored, 0, len(igLang))
		for feature, scores := range igLang {
			if l >= len(scores) {
				continue
			}
			score := scores[l]
			if !opts.IgnoreDomain {
				score -= igDomain[feature]
			}
			candidates = append(candidates, scored{feature: []byte(feature), score: score})
		}

		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return bytes.Compare(candidates[i].feature, candidates[j].feature) < 0
		})

		n := opts.FeaturesPerLang
		if n > len(candidates) {
			n = len(candidates)
		}
		top := make([][]byte, n)
		for i := 0; i < n; i++ {
			top[i] = candidates[i].feature
		}
		perLang[l] = top
	}

	seen := make(map[string]bool)
	for _, top := range perLang {
		for _, feature := range top {
			seen[string(feature)] = true
		}
	}
	union = make([][]byte, 0, len(seen))
	for feature := range seen {
		union = append(union, []byte(feature))
	}
	sort.Slice(union, func(i, j int) bool { return bytes.Compare(union[i], union[j]) < 0 })
	return perLang, union
}

// WritePerLang writes one line per language, each a space-separated list
// of its selected features (Go-quoted to stay readable for non-printable
// bytes). This mirrors the original implementation's LDfeats.perlang
// debug artifact, dropped by the distilled pipeline but reintroduced
// here as a supplemented debug output.
func WritePerLang(path string, perLang [][][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, features := range perLang {
		for i, feature := range features {
			if i > 0 {
				if _, err := w.WriteString(" "); err != nil {
					return pkgerrors.NewIOError("write", path, err)
				}
			}
			if _, err := fmt.Fprintf(w, "%q", feature); err != nil {
				return pkgerrors.NewIOError("write", path, err)
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return pkgerrors.NewIOError("write", path, err)
		}
	}
	return w.Flush()
}
