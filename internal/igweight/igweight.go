// Package igweight implements the IG computer (spec §4.F): per-feature
// Information Gain against a class distribution, computed in parallel
// across buckets.
package igweight

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/langid-train/internal/tally"
	"github.com/standardbeagle/langid-train/internal/types"
)

// ClassOf maps a document id to its class index (language or domain,
// depending on which distribution is being computed against).
type ClassOf func(types.DocID) int

// Options configures an IG computation.
type Options struct {
	Jobs     int
	Binarize bool // true: a document contributes at most 1 per feature; false: raw counts
}

// entropy computes -Σ p_i log p_i over counts normalized by total, using
// natural log and the convention 0·log0 = 0 (spec §4.F).
func entropy(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		h -= p * math.Log(p)
	}
	return h
}

// ig computes IG(f) = H(π) - (x/T)H(q+) - ((T-x)/T)H(q-) given per-class
// document counts N and per-class positive-occurrence counts t (spec
// §4.F). Both slices must have the same length.
func ig(N, t []float64) float64 {
	var T, x float64
	for i := range N {
		T += N[i]
		x += t[i]
	}
	if T <= 0 {
		return 0
	}

	qPlus := make([]float64, len(N))
	qMinus := make([]float64, len(N))
	for i := range N {
		qPlus[i] = t[i]
		qMinus[i] = N[i] - t[i]
	}

	piH := entropy(N, T)
	hPlus := entropy(qPlus, x)
	hMinus := entropy(qMinus, T-x)
	return piH - (x/T)*hPlus - ((T-x)/T)*hMinus
}

// accumulate reads one bucket and returns, for every feature in the
// selected set present in that bucket, a vector of per-class positive
// counts (spec §4.F "Per-feature computation"). Buckets are
// feature-disjoint, so callers can merge results by plain assignment.
func accumulate(bucketDir string, features map[string]bool, classOf ClassOf, numClasses int, binarize bool) (map[string][]float64, error) {
	records, err := tally.Decode(bucketDir)
	if err != nil {
		return nil, err
	}

	perFeatureDoc := make(map[string]map[types.DocID]int64)
	for _, rec := range records {
		key := string(rec.Feature)
		if !features[key] {
			continue
		}
		docs := perFeatureDoc[key]
		if docs == nil {
			docs = make(map[types.DocID]int64)
			perFeatureDoc[key] = docs
		}
		docs[rec.DocID] += int64(rec.Count)
	}

	out := make(map[string][]float64, len(perFeatureDoc))
	for feature, docs := range perFeatureDoc {
		t := make([]float64, numClasses)
		for doc, count := range docs {
			if count <= 0 {
				continue
			}
			c := classOf(doc)
			if binarize {
				t[c]++
			} else {
				t[c] += float64(count)
			}
		}
		out[feature] = t
	}
	return out, nil
}

// runBuckets accumulates per-class positive counts across every bucket,
// in parallel, then merges the feature-disjoint partials.
func runBuckets(ctx context.Context, bucketDirs []string, features map[string]bool, classOf ClassOf, numClasses int, opts Options) (map[string][]float64, error) {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	partials := make([]map[string][]float64, len(bucketDirs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, jobs)
	for i, dir := range bucketDirs {
		i, dir := i, dir
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			partial, err := accumulate(dir, features, classOf, numClasses, opts.Binarize)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string][]float64)
	for _, p := range partials {
		for feature, t := range p {
			merged[feature] = t
		}
	}
	return merged, nil
}

// ComputeAggregate computes a single IG scalar per feature against the
// full class distribution (used for the domain penalty term in spec
// §4.G, which only needs one value per feature rather than a
// per-domain breakdown).
func ComputeAggregate(ctx context.Context, bucketDirs []string, features map[string]bool, classOf ClassOf, classDist []float64, opts Options) (map[string]float64, error) {
	counts, err := runBuckets(ctx, bucketDirs, features, classOf, len(classDist), opts)
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(counts))
	for feature, t := range counts {
		result[feature] = ig(classDist, t)
	}
	return result, nil
}

// ComputePerClass computes, for every feature, a vector of per-class IG
// values using a one-vs-rest binarization of the class variable (spec
// §4.G: "the per-language IG of feature f against a binarization of 'is
// language L' vs 'is not'"). This is the interpretation used for
// per-language IG.
func ComputePerClass(ctx context.Context, bucketDirs []string, features map[string]bool, classOf ClassOf, classDist []float64, opts Options) (map[string][]float64, error) {
	counts, err := runBuckets(ctx, bucketDirs, features, classOf, len(classDist), opts)
	if err != nil {
		return nil, err
	}

	T := 0.0
	for _, n := range classDist {
		T += n
	}

	result := make(map[string][]float64, len(counts))
	for feature, t := range counts {
		x := 0.0
		for _, v := range t {
			x += v
		}
		scores := make([]float64, len(classDist))
		for c := range classDist {
			n2 := []float64{classDist[c], T - classDist[c]}
			t2 := []float64{t[c], x - t[c]}
			scores[c] = ig(n2, t2)
		}
		result[feature] = scores
	}
	return result, nil
}
