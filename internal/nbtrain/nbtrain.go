// Package nbtrain implements the NB learner (spec §4.H): it streams
// every document through the final scanner to accumulate per-class
// feature counts, then fits multinomial Naive Bayes log-probabilities
// with additive smoothing.
package nbtrain

import (
	"fmt"
	"math"
	"os"

	"github.com/standardbeagle/langid-train/internal/debug"
	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/scanner"
	"github.com/standardbeagle/langid-train/internal/types"
)

// Document is the minimal view the learner needs: a path to scan and the
// language label used to build the class-membership matrix.
type Document struct {
	ID   types.DocID
	Lang types.LangID
	Path string
}

// CM is the boolean class-membership matrix (spec §3 "Count matrix
// CM"): CM[i][c] is true iff document i belongs to class c. Exactly one
// entry is true per row.
type CM [][]bool

// BuildCM constructs the class-membership matrix for docs against
// numLangs classes.
func BuildCM(docs []Document, numLangs int) CM {
	cm := make(CM, len(docs))
	for i, doc := range docs {
		row := make([]bool, numLangs)
		row[doc.Lang] = true
		cm[i] = row
	}
	return cm
}

// Options configures additive smoothing. Both must be strictly
// positive (spec §4.H "Numerical policy": any smoothing parameter = 0
// is rejected).
type Options struct {
	Alpha float64 // class prior smoothing, default 1
	Beta  float64 // feature-given-class smoothing, default 1
}

// Model holds the learned log-probabilities: PC[c] = log P(class=c),
// PTC[f][c] = log P(feature=f | class=c).
type Model struct {
	PC  []float64
	PTC [][]float64
}

// Learn scans every document with sc to accumulate per-class feature
// counts, then fits pc and ptc with additive smoothing (spec §4.H).
// Unreadable documents are skipped and logged, matching the tally
// phase's tolerance policy (spec §7); the caller is responsible for
// tracking the failure rate against any configured threshold.
func Learn(docs []Document, sc *scanner.Scanner, numLangs int, opts Options) (*Model, error) {
	if opts.Alpha <= 0 {
		return nil, pkgerrors.NewConfigError("class_alpha", fmt.Sprint(opts.Alpha), fmt.Errorf("must be > 0"))
	}
	if opts.Beta <= 0 {
		return nil, pkgerrors.NewConfigError("feature_beta", fmt.Sprint(opts.Beta), fmt.Errorf("must be > 0"))
	}

	cm := BuildCM(docs, numLangs)
	numFeatures := len(sc.Features())

	NC := make([]float64, numLangs)
	FTC := make([][]float64, numFeatures)
	for f := range FTC {
		FTC[f] = make([]float64, numLangs)
	}

	for i, doc := range docs {
		class := classOf(cm[i])

		data, err := os.ReadFile(doc.Path)
		if err != nil {
			debug.Logf("nbtrain: skipping unreadable document %s: %v", doc.Path, err)
			continue
		}
		NC[class]++
		counts := sc.Count(data)
		for f, c := range counts {
			if c == 0 {
				continue
			}
			FTC[f][class] += float64(c)
		}
	}

	totalDocs := 0.0
	for _, n := range NC {
		totalDocs += n
	}

	pc := make([]float64, numLangs)
	for c := range pc {
		pc[c] = math.Log((NC[c] + opts.Alpha) / (totalDocs + float64(numLangs)*opts.Alpha))
	}

	classFeatureTotal := make([]float64, numLangs)
	for f := range FTC {
		for c := range FTC[f] {
			classFeatureTotal[c] += FTC[f][c]
		}
	}

	ptc := make([][]float64, numFeatures)
	for f := range FTC {
		ptc[f] = make([]float64, numLangs)
		for c := range FTC[f] {
			ptc[f][c] = math.Log((FTC[f][c] + opts.Beta) / (classFeatureTotal[c] + float64(numFeatures)*opts.Beta))
		}
	}

	return &Model{PC: pc, PTC: ptc}, nil
}

func classOf(row []bool) types.LangID {
	for c, v := range row {
		if v {
			return types.LangID(c)
		}
	}
	return 0
}
