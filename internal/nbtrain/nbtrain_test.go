package nbtrain

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/langid-train/internal/scanner"
)

func writeTempDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildCMHasExactlyOneTruePerRow(t *testing.T) {
	docs := []Document{{Lang: 0}, {Lang: 2}, {Lang: 1}}
	cm := BuildCM(docs, 3)
	for _, row := range cm {
		count := 0
		for _, v := range row {
			if v {
				count++
			}
		}
		assert.Equal(t, 1, count)
	}
	assert.True(t, cm[1][2])
}

func TestLearnRejectsZeroSmoothing(t *testing.T) {
	sc, err := scanner.Build([][]byte{[]byte("a")})
	require.NoError(t, err)

	_, err = Learn(nil, sc, 1, Options{Alpha: 0, Beta: 1})
	assert.Error(t, err)

	_, err = Learn(nil, sc, 1, Options{Alpha: 1, Beta: 0})
	assert.Error(t, err)
}

func TestLearnProducesValidLogProbabilities(t *testing.T) {
	dir := t.TempDir()
	sc, err := scanner.Build([][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)

	docs := []Document{
		{ID: 0, Lang: 0, Path: writeTempDoc(t, dir, "c0a.txt", "aaa")},
		{ID: 1, Lang: 0, Path: writeTempDoc(t, dir, "c0b.txt", "aa")},
		{ID: 2, Lang: 1, Path: writeTempDoc(t, dir, "c1a.txt", "bbb")},
		{ID: 3, Lang: 1, Path: writeTempDoc(t, dir, "c1b.txt", "bb")},
	}

	model, err := Learn(docs, sc, 2, Options{Alpha: 1, Beta: 1})
	require.NoError(t, err)

	// exp(pc) sums to 1 within tolerance (spec §3 invariant).
	sum := math.Exp(model.PC[0]) + math.Exp(model.PC[1])
	assert.InDelta(t, 1.0, sum, 1e-9)

	// one ptc row per feature, and every entry is a finite log-probability.
	require.Len(t, model.PTC, 2)
	for _, row := range model.PTC {
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
			assert.False(t, math.IsInf(v, 0))
		}
	}

	// feature "a" should be far more probable under class 0 than class 1.
	assert.Greater(t, model.PTC[0][0], model.PTC[0][1])
	assert.Greater(t, model.PTC[1][1], model.PTC[1][0])
}

func TestLearnSkipsUnreadableDocuments(t *testing.T) {
	dir := t.TempDir()
	sc, err := scanner.Build([][]byte{[]byte("a")})
	require.NoError(t, err)

	docs := []Document{
		{ID: 0, Lang: 0, Path: filepath.Join(dir, "missing.txt")},
		{ID: 1, Lang: 0, Path: writeTempDoc(t, dir, "ok.txt", "a")},
	}

	model, err := Learn(docs, sc, 1, Options{Alpha: 1, Beta: 1})
	require.NoError(t, err)
	require.Len(t, model.PC, 1)
	assert.False(t, math.IsNaN(model.PC[0]))
}
