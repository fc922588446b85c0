// Package dfselect implements the DF selector (spec §4.D): it
// aggregates per-bucket document frequencies in parallel, then keeps
// the top-K features by descending DF within each n-gram order.
package dfselect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/tally"
)

// Tally reads every record in every bucket and folds (feature, docID)
// into a document-frequency count: a feature's DF is incremented once
// per distinct document it appears in, regardless of its occurrence
// count within that document (spec §4.D "Tally read"). Buckets are
// independent, so this runs with up to `jobs` buckets in flight at once.
func Tally(ctx context.Context, bucketDirs []string, jobs int) (map[string]int, error) {
	if jobs < 1 {
		jobs = 1
	}

	type partial map[string]int
	partials := make([]partial, len(bucketDirs))

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
			df, err := tallyBucket(dir)
			if err != nil {
				return err
			}
			partials[i] = df
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]int)
	for _, p := range partials {
		for feature, count := range p {
			merged[feature] = count // buckets never share a feature, so no need to sum
		}
	}
	return merged, nil
}

func tallyBucket(dir string) (map[string]int, error) {
	records, err := tally.Decode(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]map[int32]bool) // feature -> set(docID)
	for _, rec := range records {
		key := string(rec.Feature)
		if seen[key] == nil {
			seen[key] = make(map[int32]bool)
		}
		seen[key][int32(rec.DocID)] = true
	}

	df := make(map[string]int, len(seen))
	for feature, docs := range seen {
		df[feature] = len(docs)
	}
	return df, nil
}

// featureCount pairs a feature's bytes with its document frequency, for
// sorting.
type featureCount struct {
	feature []byte
	count   int
}

// Select groups features by byte length (n-gram order) and keeps the
// top topK per order by descending DF, breaking ties lexicographically
// (spec §4.D "Selection"). maxOrder bounds which orders are considered;
// pass 0 to consider every order present in df.
func Select(df map[string]int, maxOrder, topK int) [][]byte {
	byOrder := make(map[int][]featureCount)
	for feature, count := range df {
		order := len(feature)
		if maxOrder > 0 && order > maxOrder {
			continue
		}
		byOrder[order] = append(byOrder[order], featureCount{feature: []byte(feature), count: count})
	}

	orders := make([]int, 0, len(byOrder))
	for order := range byOrder {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	var selected [][]byte
	for _, order := range orders {
		items := byOrder[order]
		sort.Slice(items, func(i, j int) bool {
			if items[i].count != items[j].count {
				return items[i].count > items[j].count
			}
			return bytes.Compare(items[i].feature, items[j].feature) < 0
		})
		n := topK
		if n > len(items) {
			n = len(items)
		}
		for _, item := range items[:n] {
			selected = append(selected, item.feature)
		}
	}
	return selected
}

// WriteAllDF writes every feature's document frequency as CSV
// (feature,count), sorted by descending count then lexicographically.
// This is a debug artifact not produced by the distilled pipeline but
// present in the original implementation's --debug output.
func WriteAllDF(path string, df map[string]int) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	items := make([]featureCount, 0, len(df))
	for feature, count := range df {
		items = append(items, featureCount{feature: []byte(feature), count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return bytes.Compare(items[i].feature, items[j].feature) < 0
	})

	w := bufio.NewWriter(f)
	for _, item := range items {
		if _, err := fmt.Fprintf(w, "%s,%d\n", item.feature, item.count); err != nil {
			return pkgerrors.NewIOError("write", path, err)
		}
	}
	return w.Flush()
}
