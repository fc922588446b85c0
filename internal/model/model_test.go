package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/langid-train/internal/scanner"
)

func TestWriteReadRoundTrip(t *testing.T) {
	sc, err := scanner.Build([][]byte{[]byte("ab"), []byte("bc"), []byte("abc")})
	require.NoError(t, err)

	m := &Model{
		PTC: [][]float64{
			{math.Log(0.5), math.Log(0.3)},
			{math.Log(0.25), math.Log(0.4)},
			{math.Log(0.25), math.Log(0.3)},
		},
		PC:      []float64{math.Log(0.6), math.Log(0.4)},
		Classes: []string{"en", "fr"},
		Scanner: sc,
	}

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, m.Classes, got.Classes)
	require.Len(t, got.PC, 2)
	for c := range m.PC {
		assert.InDelta(t, m.PC[c], got.PC[c], 1e-12)
	}
	require.Len(t, got.PTC, len(m.PTC))
	for f := range m.PTC {
		for c := range m.PTC[f] {
			assert.InDelta(t, m.PTC[f][c], got.PTC[f][c], 1e-12)
		}
	}

	assert.Equal(t, sc.NumStates, got.Scanner.NumStates)
	assert.Equal(t, sc.Output, got.Scanner.Output)
	if sc.NextMove32 != nil {
		assert.Equal(t, sc.NextMove32, got.Scanner.NextMove32)
	} else {
		assert.Equal(t, sc.NextMove16, got.Scanner.NextMove16)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("not a real model file"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
