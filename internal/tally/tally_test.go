package tally

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/langid-train/internal/tokenize"
	"github.com/standardbeagle/langid-train/internal/types"
)

func writeTempDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAllBuckets(t *testing.T, bucketDirs []string) []Record {
	t.Helper()
	var all []Record
	for _, dir := range bucketDirs {
		recs, err := Decode(dir)
		require.NoError(t, err)
		all = append(all, recs...)
	}
	return all
}

func TestTallyCoLocatesFeaturePerBucket(t *testing.T) {
	tmp := t.TempDir()
	docDir := t.TempDir()
	p1 := writeTempDoc(t, docDir, "a.txt", "aab")
	p2 := writeTempDoc(t, docDir, "b.txt", "abb")

	docs := []Document{{ID: 0, Path: p1}, {ID: 1, Path: p2}}
	opts := Options{
		BucketsDir: tmp,
		NumBuckets: 4,
		Jobs:       1,
		ChunkSize:  1,
		Tokenizer:  tokenize.NGram{Min: 1, Max: 1},
	}

	bucketDirs, _, err := Run(context.Background(), docs, opts)
	require.NoError(t, err)
	require.Len(t, bucketDirs, 4)

	records := readAllBuckets(t, bucketDirs)
	require.NotEmpty(t, records)

	featureBucket := make(map[string]int)
	for i, dir := range bucketDirs {
		recs, err := Decode(dir)
		require.NoError(t, err)
		for _, r := range recs {
			key := string(r.Feature)
			if existing, ok := featureBucket[key]; ok {
				assert.Equal(t, existing, i, "feature %q must be co-located in a single bucket", key)
			} else {
				featureBucket[key] = i
			}
		}
	}
}

func TestTallyParallelMatchesSequential(t *testing.T) {
	docDir := t.TempDir()
	var docs []Document
	for i := 0; i < 20; i++ {
		p := writeTempDoc(t, docDir, "doc.txt", "hello world")
		docs = append(docs, Document{ID: types.DocID(i), Path: p})
	}

	run := func(jobs int) map[string]int {
		tmp := t.TempDir()
		opts := Options{
			BucketsDir: tmp,
			NumBuckets: 3,
			Jobs:       jobs,
			ChunkSize:  4,
			Tokenizer:  tokenize.Whitespace{},
		}
		bucketDirs, _, err := Run(context.Background(), docs, opts)
		require.NoError(t, err)

		totals := make(map[string]int)
		for _, dir := range bucketDirs {
			recs, err := Decode(dir)
			require.NoError(t, err)
			for _, r := range recs {
				totals[string(r.Feature)] += int(r.Count)
			}
		}
		return totals
	}

	seq := run(1)
	par := run(4)
	assert.Equal(t, seq, par)
}

func TestTallyCleanupRemovesBuckets(t *testing.T) {
	tmp := t.TempDir()
	docDir := t.TempDir()
	p := writeTempDoc(t, docDir, "a.txt", "hello")
	docs := []Document{{ID: 0, Path: p}}

	opts := Options{
		BucketsDir: tmp,
		NumBuckets: 2,
		Jobs:       1,
		ChunkSize:  1,
		Tokenizer:  tokenize.Whitespace{},
	}
	bucketDirs, _, err := Run(context.Background(), docs, opts)
	require.NoError(t, err)

	require.NoError(t, Cleanup(bucketDirs))
	for _, dir := range bucketDirs {
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestTallySkipsUnreadableDocument(t *testing.T) {
	tmp := t.TempDir()
	docs := []Document{{ID: 0, Path: filepath.Join(tmp, "does-not-exist.txt")}}

	opts := Options{
		BucketsDir: tmp,
		NumBuckets: 2,
		Jobs:       1,
		ChunkSize:  1,
		Tokenizer:  tokenize.Whitespace{},
	}
	bucketDirs, stats, err := Run(context.Background(), docs, opts)
	require.NoError(t, err)
	records := readAllBuckets(t, bucketDirs)
	assert.Empty(t, records)
	assert.Equal(t, 1, stats.Attempted)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0].Error(), "does-not-exist.txt")
}

func TestTallyRejectsBadOptions(t *testing.T) {
	_, _, err := Run(context.Background(), nil, Options{BucketsDir: t.TempDir(), NumBuckets: 0, ChunkSize: 1})
	assert.Error(t, err)

	_, _, err = Run(context.Background(), nil, Options{BucketsDir: t.TempDir(), NumBuckets: 1, ChunkSize: 0})
	assert.Error(t, err)
}
