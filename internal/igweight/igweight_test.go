package igweight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/langid-train/internal/tally"
	"github.com/standardbeagle/langid-train/internal/tokenize"
	"github.com/standardbeagle/langid-train/internal/types"
)

func TestEntropyZeroForDegenerateDistribution(t *testing.T) {
	assert.Equal(t, 0.0, entropy([]float64{5, 0}, 5))
	assert.Equal(t, 0.0, entropy(nil, 0))
}

func TestEntropyMaximalForUniformBinary(t *testing.T) {
	h := entropy([]float64{1, 1}, 2)
	assert.InDelta(t, math.Log(2), h, 1e-9)
}

func TestIGZeroWhenFeaturePerfectlyUninformative(t *testing.T) {
	// Feature occurs proportionally to class size in every class: no gain.
	N := []float64{10, 10}
	tpos := []float64{5, 5}
	assert.InDelta(t, 0.0, ig(N, tpos), 1e-9)
}

func TestIGPositiveWhenFeaturePerfectlyDiscriminative(t *testing.T) {
	// Feature occurs only in class 0's documents.
	N := []float64{10, 10}
	tpos := []float64{10, 0}
	got := ig(N, tpos)
	assert.Greater(t, got, 0.0)
}

func writeTempDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// buildScenario tokenizes two documents, one per class, where "zz" only
// occurs in class 0's document and "ww" occurs in both equally.
func buildScenario(t *testing.T) ([]string, map[string]bool, ClassOf, []float64) {
	t.Helper()
	docDir := t.TempDir()
	bucketsDir := t.TempDir()

	p0 := writeTempDoc(t, docDir, "c0.txt", "zz ww")
	p1 := writeTempDoc(t, docDir, "c1.txt", "ww")

	docs := []tally.Document{
		{ID: 0, Path: p0},
		{ID: 1, Path: p1},
	}
	bucketDirs, _, err := tally.Run(context.Background(), docs, tally.Options{
		BucketsDir: bucketsDir,
		NumBuckets: 2,
		Jobs:       1,
		ChunkSize:  1,
		Tokenizer:  tokenize.Whitespace{},
	})
	require.NoError(t, err)

	features := map[string]bool{"zz": true, "ww": true}
	classOf := func(id types.DocID) int {
		if id == 0 {
			return 0
		}
		return 1
	}
	classDist := []float64{1, 1}
	return bucketDirs, features, classOf, classDist
}

func TestComputeAggregateDiscriminativeFeatureScoresHigher(t *testing.T) {
	bucketDirs, features, classOf, classDist := buildScenario(t)

	result, err := ComputeAggregate(context.Background(), bucketDirs, features, classOf, classDist, Options{Jobs: 2, Binarize: true})
	require.NoError(t, err)

	assert.Greater(t, result["zz"], result["ww"])
	assert.InDelta(t, 0.0, result["ww"], 1e-9)
}

func TestComputePerClassProducesOneScorePerClass(t *testing.T) {
	bucketDirs, features, classOf, classDist := buildScenario(t)

	result, err := ComputePerClass(context.Background(), bucketDirs, features, classOf, classDist, Options{Jobs: 1, Binarize: true})
	require.NoError(t, err)

	require.Len(t, result["zz"], 2)
	// With two classes the one-vs-rest splits {0, not-0} and {1, not-1}
	// are the same partition, so "zz" scores the same gain for both.
	assert.InDelta(t, result["zz"][0], result["zz"][1], 1e-9)
}

func TestRunBucketsIgnoresUnselectedFeatures(t *testing.T) {
	bucketDirs, _, classOf, classDist := buildScenario(t)

	result, err := ComputeAggregate(context.Background(), bucketDirs, map[string]bool{"zz": true}, classOf, classDist, Options{Jobs: 1, Binarize: true})
	require.NoError(t, err)

	_, hasWW := result["ww"]
	assert.False(t, hasWW)
	_, hasZZ := result["zz"]
	assert.True(t, hasZZ)
}
