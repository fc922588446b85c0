// Package pipeline orchestrates the full training data flow (spec §2):
// index -> tally -> DF-select -> scanner -> tally (exact pass) ->
// IG -> LD-select -> scanner (final) -> NB -> model.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/standardbeagle/langid-train/internal/config"
	"github.com/standardbeagle/langid-train/internal/corpus"
	"github.com/standardbeagle/langid-train/internal/debug"
	"github.com/standardbeagle/langid-train/internal/dfselect"
	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/igweight"
	"github.com/standardbeagle/langid-train/internal/ldselect"
	"github.com/standardbeagle/langid-train/internal/model"
	"github.com/standardbeagle/langid-train/internal/nbtrain"
	"github.com/standardbeagle/langid-train/internal/scanner"
	"github.com/standardbeagle/langid-train/internal/tally"
	"github.com/standardbeagle/langid-train/internal/tokenize"
	"github.com/standardbeagle/langid-train/internal/types"
)

// maxFailureFraction is the threshold at which per-document read
// failures abort the run rather than downgrade to a warning (spec §7).
const maxFailureFraction = 0.01

// Result summarizes a completed training run.
type Result struct {
	Indexer    *corpus.Indexer
	ModelPath  string
	NumFeats   int
	NumClasses int
}

// Index runs just the corpus indexer and, when cfg.Debug is set, writes
// the lang_index/domain_index/paths debug artifacts (spec §6).
func Index(cfg *config.Config) (*corpus.Indexer, error) {
	ix, err := corpus.Index(corpus.Options{
		Root:       cfg.Corpus,
		MinDomain:  cfg.MinDomain,
		Proportion: cfg.Proportion,
		Langs:      cfg.Langs,
		Domains:    cfg.Domains,
		Rand:       rand.New(rand.NewSource(1)),
	})
	if err != nil {
		return nil, err
	}

	fmt.Printf("langs(%d): %s\n", len(ix.LangNames), corpus.Summary(ix.LangNames, ix.DistLang()))
	fmt.Printf("domains(%d): %s\n", len(ix.DomainNames), corpus.Summary(ix.DomainNames, ix.DistDomain()))
	fmt.Printf("identified %d files\n", len(ix.Items))

	if cfg.Debug && cfg.Model != "" {
		if err := writeDebugIndexArtifacts(cfg.Model, ix); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Train runs the full pipeline described in spec.md §2 and writes the
// serialized model to <cfg.Model>/model.
func Train(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Model, 0o755); err != nil {
		return nil, pkgerrors.NewIOError("mkdir", cfg.Model, err)
	}

	ix, err := corpus.Index(corpus.Options{
		Root:       cfg.Corpus,
		MinDomain:  cfg.MinDomain,
		Proportion: cfg.Proportion,
		Langs:      cfg.Langs,
		Domains:    cfg.Domains,
		Rand:       rand.New(rand.NewSource(1)),
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("langs(%d): %s\n", len(ix.LangNames), corpus.Summary(ix.LangNames, ix.DistLang()))
	fmt.Printf("domains(%d): %s\n", len(ix.DomainNames), corpus.Summary(ix.DomainNames, ix.DistDomain()))
	fmt.Printf("identified %d files\n", len(ix.Items))

	if cfg.Debug {
		if err := writeDebugIndexArtifacts(cfg.Model, ix); err != nil {
			return nil, err
		}
	}

	// bucketsDir is only a path computation here: no buckets are created
	// on disk unless selectLDFeats actually runs a tally (spec §5
	// "Resource cleanup" — with --ld_feats supplied, no buckets are
	// created at all).
	bucketsDir := cfg.TempDir
	if bucketsDir == "" {
		bucketsDir = filepath.Join(cfg.Model, "buckets")
	}

	var ldFeats [][]byte
	var bucketDirs []string

	if cfg.LDFeatsPath != "" {
		ldFeats, err = readFeatureFile(cfg.LDFeatsPath)
		if err != nil {
			return nil, err
		}
	} else {
		ldFeats, bucketDirs, err = selectLDFeats(ctx, cfg, ix, bucketsDir)
		if err != nil {
			return nil, err
		}
	}

	sc, err := scanner.Build(ldFeats)
	if err != nil {
		return nil, err
	}

	if cfg.Debug {
		if err := writeFeatureFile(filepath.Join(cfg.Model, "LDfeats"), ldFeats); err != nil {
			return nil, err
		}
	}

	docs := make([]nbtrain.Document, len(ix.Items))
	for i, item := range ix.Items {
		docs[i] = nbtrain.Document{ID: types.DocID(i), Lang: item.Lang, Path: item.Path}
	}

	nbModel, err := nbtrain.Learn(docs, sc, len(ix.LangNames), nbtrain.Options{Alpha: cfg.ClassAlpha, Beta: cfg.FeatureBeta})
	if err != nil {
		return nil, err
	}

	m := &model.Model{
		PTC:     transpose(nbModel),
		PC:      nbModel.PC,
		Classes: ix.LangNames,
		Scanner: sc,
	}

	modelPath := filepath.Join(cfg.Model, "model")
	if err := model.Write(modelPath, m); err != nil {
		return nil, err
	}

	if !cfg.Debug && cfg.LDFeatsPath == "" {
		if err := tally.Cleanup(bucketDirs); err != nil {
			return nil, err
		}
		if cfg.TempDir == "" {
			os.RemoveAll(bucketsDir)
		}
	}

	return &Result{Indexer: ix, ModelPath: modelPath, NumFeats: len(ldFeats), NumClasses: len(ix.LangNames)}, nil
}

// transpose returns PTC unchanged: nbtrain.Model.PTC is already
// [feature][class], matching model.Model's layout.
func transpose(nb *nbtrain.Model) [][]float64 {
	return nb.PTC
}

// selectLDFeats runs the DF -> IG -> LD selection chain (spec §2 data
// flow, steps C through G).
func selectLDFeats(ctx context.Context, cfg *config.Config, ix *corpus.Indexer, bucketsDir string) ([][]byte, []string, error) {
	docs := make([]tally.Document, len(ix.Items))
	for i, item := range ix.Items {
		docs[i] = tally.Document{ID: types.DocID(i), Path: item.Path}
	}

	var tokenizer tokenize.Tokenizer
	var dfFeats [][]byte
	var err error

	if cfg.DFFeatsPath != "" {
		dfFeats, err = readFeatureFile(cfg.DFFeatsPath)
		if err != nil {
			return nil, nil, err
		}
		sc, buildErr := scanner.Build(dfFeats)
		if buildErr != nil {
			return nil, nil, buildErr
		}
		tokenizer = tokenize.ScannerBacked{Scanner: sc}
	} else if cfg.Word {
		tokenizer = tokenize.Whitespace{}
	} else {
		tokenizer = tokenize.NGram{Min: 1, Max: cfg.MaxOrder}
	}

	firstPassDir := filepath.Join(bucketsDir, "pass1")
	if err := os.MkdirAll(firstPassDir, 0o755); err != nil {
		return nil, nil, pkgerrors.NewIOError("mkdir", firstPassDir, err)
	}

	firstPassBuckets, stats, err := tally.Run(ctx, docs, tally.Options{
		BucketsDir:  firstPassDir,
		NumBuckets:  cfg.Buckets,
		Jobs:        cfg.Jobs,
		ChunkSize:   cfg.ChunkSize,
		Tokenizer:   tokenizer,
		SampleCount: cfg.SampleCount,
		SampleSize:  cfg.SampleSize,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := checkFailureRate(stats); err != nil {
		return nil, nil, err
	}

	if cfg.DFFeatsPath == "" || cfg.Debug {
		df, tallyErr := dfselect.Tally(ctx, firstPassBuckets, cfg.Jobs)
		if tallyErr != nil {
			return nil, nil, tallyErr
		}
		if cfg.Debug {
			if writeErr := dfselect.WriteAllDF(filepath.Join(cfg.Model, "DF_all"), df); writeErr != nil {
				return nil, nil, writeErr
			}
		}
		if cfg.DFFeatsPath == "" {
			dfFeats = dfselect.Select(df, cfg.MaxOrder, cfg.DFTokens)
		}
	}

	if !cfg.Debug {
		tally.Cleanup(firstPassBuckets)
	}

	if cfg.Debug {
		if err := writeFeatureFile(filepath.Join(cfg.Model, "DFfeats"), dfFeats); err != nil {
			return nil, nil, err
		}
	}

	dfScanner, err := scanner.Build(dfFeats)
	if err != nil {
		return nil, nil, err
	}

	secondPassBuckets, stats2, err := tally.Run(ctx, docs, tally.Options{
		BucketsDir: bucketsDir,
		NumBuckets: cfg.Buckets,
		Jobs:       cfg.Jobs,
		ChunkSize:  cfg.ChunkSize,
		Tokenizer:  tokenize.ScannerBacked{Scanner: dfScanner},
	})
	if err != nil {
		return nil, nil, err
	}
	if err := checkFailureRate(stats2); err != nil {
		return nil, nil, err
	}

	featureSet := make(map[string]bool, len(dfFeats))
	for _, f := range dfFeats {
		featureSet[string(f)] = true
	}

	langOf := func(id types.DocID) int { return int(ix.Items[id].Lang) }
	domainOf := func(id types.DocID) int { return int(ix.Items[id].Domain) }

	langDist := toFloat(ix.DistLang())
	domainDist := toFloat(ix.DistDomain())

	igLang, err := igweight.ComputePerClass(ctx, secondPassBuckets, featureSet, langOf, langDist, igweight.Options{Jobs: cfg.Jobs, Binarize: true})
	if err != nil {
		return nil, nil, err
	}

	igDomain := map[string]float64{}
	if !cfg.NoDomainIG {
		igDomain, err = igweight.ComputeAggregate(ctx, secondPassBuckets, featureSet, domainOf, domainDist, igweight.Options{Jobs: cfg.Jobs, Binarize: false})
		if err != nil {
			return nil, nil, err
		}
	}

	if cfg.Debug {
		if err := dfselect.WriteAllDF(filepath.Join(cfg.Model, "IGweights.lang"), igVectorMagnitudes(igLang)); err != nil {
			return nil, nil, err
		}
		if !cfg.NoDomainIG {
			if err := dfselect.WriteAllDF(filepath.Join(cfg.Model, "IGweights.domain.bin"), igScalarToInt(igDomain)); err != nil {
				return nil, nil, err
			}
		}
	}

	perLang, union := ldselect.Select(igLang, igDomain, len(ix.LangNames), ldselect.Options{
		FeaturesPerLang: cfg.FeatsPerLang,
		IgnoreDomain:    cfg.NoDomainIG,
	})

	if cfg.Debug {
		if err := ldselect.WritePerLang(filepath.Join(cfg.Model, "LDfeats.perlang"), perLang); err != nil {
			return nil, nil, err
		}
	}

	return union, secondPassBuckets, nil
}

func toFloat(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

// igVectorMagnitudes collapses a per-class IG vector to a single
// representative magnitude (its max component) for the DF_all-shaped
// debug writer, which expects scalar weights.
func igVectorMagnitudes(igLang map[string][]float64) map[string]int {
	out := make(map[string]int, len(igLang))
	for feature, scores := range igLang {
		max := 0.0
		for _, s := range scores {
			if s > max {
				max = s
			}
		}
		out[feature] = int(max * 1e6)
	}
	return out
}

func igScalarToInt(ig map[string]float64) map[string]int {
	out := make(map[string]int, len(ig))
	for feature, v := range ig {
		out[feature] = int(v * 1e6)
	}
	return out
}

func writeDebugIndexArtifacts(modelDir string, ix *corpus.Indexer) error {
	if err := writeCountCSV(filepath.Join(modelDir, "lang_index"), ix.LangNames, ix.DistLang()); err != nil {
		return err
	}
	if err := writeCountCSV(filepath.Join(modelDir, "domain_index"), ix.DomainNames, ix.DistDomain()); err != nil {
		return err
	}
	return writePathsCSV(filepath.Join(modelDir, "paths"), ix)
}

func writeCountCSV(path string, names []string, counts []int) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, name := range names {
		if _, err := fmt.Fprintf(w, "%s,%d\n", name, counts[i]); err != nil {
			return pkgerrors.NewIOError("write", path, err)
		}
	}
	return w.Flush()
}

func writePathsCSV(path string, ix *corpus.Indexer) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, doc := range ix.Items {
		if _, err := fmt.Fprintf(w, "%d,%d,%s\n", doc.Domain, doc.Lang, doc.Path); err != nil {
			return pkgerrors.NewIOError("write", path, err)
		}
	}
	return w.Flush()
}

func readFeatureFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewIOError("open", path, err)
	}
	defer f.Close()

	var feats [][]byte
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		unquoted, err := unquoteFeature(line)
		if err != nil {
			return nil, pkgerrors.NewFormatError(path, err)
		}
		feats = append(feats, unquoted)
	}
	if err := scan.Err(); err != nil {
		return nil, pkgerrors.NewIOError("read", path, err)
	}
	return feats, nil
}

func writeFeatureFile(path string, feats [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	sorted := append([][]byte(nil), feats...)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i]) < string(sorted[j]) })
	for _, feat := range sorted {
		if _, err := fmt.Fprintf(w, "%q\n", feat); err != nil {
			return pkgerrors.NewIOError("write", path, err)
		}
	}
	return w.Flush()
}

func unquoteFeature(line string) ([]byte, error) {
	unquoted, err := strconv.Unquote(line)
	if err != nil {
		return nil, err
	}
	return []byte(unquoted), nil
}

// checkFailureRate enforces spec §7's 1% threshold. When it is
// exceeded, every offending path is reported at once via a MultiError
// instead of just a count, so the caller can see exactly which
// documents to fix.
func checkFailureRate(stats tally.Stats) error {
	if stats.Attempted == 0 {
		return nil
	}
	if float64(stats.Failed)/float64(stats.Attempted) > maxFailureFraction {
		debug.Logf("failure rate %d/%d exceeds threshold", stats.Failed, stats.Attempted)
		return pkgerrors.NewIOError("tally", "corpus", fmt.Errorf("%d/%d documents unreadable, exceeds %.0f%% threshold: %w",
			stats.Failed, stats.Attempted, maxFailureFraction*100, pkgerrors.NewMultiError(stats.Errors)))
	}
	return nil
}
