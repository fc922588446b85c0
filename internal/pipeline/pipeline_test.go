package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/langid-train/internal/config"
	"github.com/standardbeagle/langid-train/internal/model"
)

func writeDoc(t *testing.T, root, domain, lang, name, content string) {
	t.Helper()
	dir := filepath.Join(root, domain, lang)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func buildCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	enText := "the quick brown fox jumps over the lazy dog repeatedly in english prose"
	frText := "le vif renard brun saute par dessus le chien paresseux de maniere repetee"
	for i := 0; i < 6; i++ {
		writeDoc(t, root, "news", "en", docName(i), enText)
		writeDoc(t, root, "news", "fr", docName(i), frText)
		writeDoc(t, root, "web", "en", docName(i), enText)
		writeDoc(t, root, "web", "fr", docName(i), frText)
	}
	return root
}

func docName(i int) string {
	return string(rune('a'+i)) + ".txt"
}

func baseTrainConfig(t *testing.T, corpus string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Corpus = corpus
	cfg.Model = t.TempDir()
	cfg.Buckets = 4
	cfg.ChunkSize = 2
	cfg.MaxOrder = 2
	cfg.DFTokens = 50
	cfg.FeatsPerLang = 10
	cfg.Jobs = 1
	return &cfg
}

func TestIndexSummarizesCorpus(t *testing.T) {
	corpus := buildCorpus(t)
	cfg := baseTrainConfig(t, corpus)

	ix, err := Index(cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "fr"}, ix.LangNames)
	assert.ElementsMatch(t, []string{"news", "web"}, ix.DomainNames)
	assert.Len(t, ix.Items, 24)
}

func TestTrainProducesReadableModel(t *testing.T) {
	corpus := buildCorpus(t)
	cfg := baseTrainConfig(t, corpus)

	result, err := Train(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumClasses)
	assert.Greater(t, result.NumFeats, 0)

	m, err := model.Read(result.ModelPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "fr"}, m.Classes)
	assert.Len(t, m.PC, 2)
	assert.Len(t, m.PTC, result.NumFeats)

	// buckets dir should be cleaned up when not in debug mode.
	_, statErr := os.Stat(filepath.Join(cfg.Model, "buckets"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrainWithDebugWritesArtifacts(t *testing.T) {
	corpus := buildCorpus(t)
	cfg := baseTrainConfig(t, corpus)
	cfg.Debug = true

	_, err := Train(context.Background(), cfg)
	require.NoError(t, err)

	for _, name := range []string{"lang_index", "domain_index", "paths", "DFfeats", "LDfeats", "LDfeats.perlang", "model"} {
		_, statErr := os.Stat(filepath.Join(cfg.Model, name))
		assert.NoError(t, statErr, "expected debug artifact %s", name)
	}
}

func TestTrainWithLDFeatsSkipsSelection(t *testing.T) {
	corpus := buildCorpus(t)
	cfg := baseTrainConfig(t, corpus)

	ldPath := filepath.Join(t.TempDir(), "ld.txt")
	require.NoError(t, os.WriteFile(ldPath, []byte("\"th\"\n\"le\"\n"), 0o644))
	cfg.LDFeatsPath = ldPath

	result, err := Train(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumFeats)

	// spec §5 "Resource cleanup": with --ld_feats supplied, no buckets
	// are created at all.
	_, statErr := os.Stat(filepath.Join(cfg.Model, "buckets"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrainRejectsMutuallyExclusiveFeatureFiles(t *testing.T) {
	corpus := buildCorpus(t)
	cfg := baseTrainConfig(t, corpus)
	cfg.DFFeatsPath = "df.txt"
	cfg.LDFeatsPath = "ld.txt"

	_, err := Train(context.Background(), cfg)
	assert.Error(t, err)
}
