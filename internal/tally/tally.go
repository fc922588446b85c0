// Package tally implements the bucketed tally (spec §4.C): a parallel,
// disk-backed map-reduce that tokenizes documents in chunks and
// partitions (feature -> per-document counts) across B on-disk buckets
// by a stable hash, keeping memory bounded regardless of corpus size.
package tally

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/langid-train/internal/debug"
	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/tokenize"
	"github.com/standardbeagle/langid-train/internal/types"
)

// Document is the minimal view of a corpus entry the tally phase needs:
// an id to record in bucket entries, and a path to read bytes from.
type Document struct {
	ID   types.DocID
	Path string
}

// Options configures a tally run.
type Options struct {
	BucketsDir  string
	NumBuckets  int
	Jobs        int // J; 1 = strictly sequential, in-process (spec §5)
	ChunkSize   int
	Tokenizer   tokenize.Tokenizer
	SampleCount int // <=0 (including the -1 sentinel) means "whole document", no sampling
	SampleSize  int
	Rand        *rand.Rand
}

// bucketHash is the stable, content-addressed hash used to select a
// feature's bucket (spec §4.C "Hash"). xxhash is used in place of the
// spec's suggested FNV-1a: both are deterministic, stable,
// non-cryptographic hashes, and xxhash is the hash already exercised
// elsewhere in this corpus's idiom for exactly this kind of identity
// hashing (see DESIGN.md).
func bucketHash(feature []byte, numBuckets int) int {
	return int(xxhash.Sum64(feature) % uint64(numBuckets))
}

// Stats reports how many documents a Run attempted to read and how many
// of those were unreadable (spec §7 "Per-document read failures
// downgrade to a warning ... but only if fewer than 1% of documents
// fail"). Errors holds one entry per unreadable document, so a caller
// that decides the failure rate is unacceptable can report every
// offending path at once instead of just a count.
type Stats struct {
	Attempted int
	Failed    int
	Errors    []error
}

// failureCollector accumulates per-document read failures from however
// many worker goroutines are running concurrently.
type failureCollector struct {
	mu     sync.Mutex
	errors []error
}

func (c *failureCollector) add(err error) {
	c.mu.Lock()
	c.errors = append(c.errors, err)
	c.mu.Unlock()
}

func (c *failureCollector) stats(attempted int) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Attempted: attempted, Failed: len(c.errors), Errors: c.errors}
}

// Run tokenizes every document in chunks across Jobs workers, appending
// (feature, docID, count) records to per-worker bucket files. Returns
// the list of bucket directory paths (one per bucket, always
// NumBuckets of them, even if some are never written to) and read
// failure statistics.
func Run(ctx context.Context, docs []Document, opts Options) ([]string, Stats, error) {
	if opts.NumBuckets < 1 {
		return nil, Stats{}, pkgerrors.NewConfigError("buckets", fmt.Sprint(opts.NumBuckets), fmt.Errorf("must be >= 1"))
	}
	if opts.ChunkSize < 1 {
		return nil, Stats{}, pkgerrors.NewConfigError("chunksize", fmt.Sprint(opts.ChunkSize), fmt.Errorf("must be >= 1"))
	}

	bucketDirs := make([]string, opts.NumBuckets)
	for b := 0; b < opts.NumBuckets; b++ {
		dir := filepath.Join(opts.BucketsDir, fmt.Sprintf("bucket_%d", b))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, Stats{}, pkgerrors.NewIOError("mkdir", dir, err)
		}
		bucketDirs[b] = dir
	}

	chunks := chunk(docs, opts.ChunkSize)
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var failures failureCollector

	if jobs == 1 {
		// Strictly sequential, in-process: preserved for debuggability
		// per spec §5.
		for workerID, ch := range chunks {
			if err := processChunk(workerID, ch, opts, bucketDirs, rng, &failures); err != nil {
				return nil, Stats{}, err
			}
		}
		return bucketDirs, failures.stats(len(docs)), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, jobs)
	for workerID, ch := range chunks {
		workerID, ch := workerID, ch
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return nil, Stats{}, err
			}
			return nil, Stats{}, ctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			return processChunk(workerID, ch, opts, bucketDirs, rng, &failures)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	return bucketDirs, failures.stats(len(docs)), nil
}

func chunk(docs []Document, size int) [][]Document {
	var chunks [][]Document
	for i := 0; i < len(docs); i += size {
		end := i + size
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[i:end])
	}
	return chunks
}

// record is a single (feature, docID, count) tuple as written to a
// bucket file.
type record struct {
	feature []byte
	docID   types.DocID
	count   int32
}

func processChunk(workerID int, docs []Document, opts Options, bucketDirs []string, rng *rand.Rand, failures *failureCollector) error {
	localBuffers := make([][]record, len(bucketDirs))

	for _, doc := range docs {
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			// Per-document read failures downgrade to a warning; the
			// caller (pipeline) tracks the failure rate against the
			// 1% threshold in spec §7.
			debug.Logf("worker %d: skipping unreadable document %s: %v", workerID, doc.Path, err)
			failures.add(fmt.Errorf("%s: %w", doc.Path, err))
			continue
		}

		var sources [][]byte
		if opts.SampleCount > 0 {
			sources = tokenize.SampleWindows(data, opts.SampleCount, opts.SampleSize, rng)
		} else {
			sources = [][]byte{data}
		}

		for _, src := range sources {
			for _, tok := range opts.Tokenizer.Tokenize(src) {
				b := bucketHash(tok.Feature, len(bucketDirs))
				localBuffers[b] = append(localBuffers[b], record{
					feature: tok.Feature,
					docID:   doc.ID,
					count:   int32(tok.Count),
				})
			}
		}
	}

	for b, buf := range localBuffers {
		if len(buf) == 0 {
			continue
		}
		if err := flushBucket(bucketDirs[b], workerID, buf); err != nil {
			return err
		}
	}
	return nil
}

// flushBucket atomically appends buf's records to
// <bucketDir>/<workerID>.bin by writing to a unique temp file and
// renaming (spec §4.C step 4).
func flushBucket(bucketDir string, workerID int, buf []record) error {
	finalPath := filepath.Join(bucketDir, fmt.Sprintf("%d.bin", workerID))
	tmpFile, err := os.CreateTemp(bucketDir, fmt.Sprintf(".tmp-%d-*", workerID))
	if err != nil {
		return pkgerrors.NewIOError("create-temp", bucketDir, err)
	}
	tmpPath := tmpFile.Name()

	w := bufio.NewWriter(tmpFile)
	for _, rec := range buf {
		if err := writeRecord(w, rec); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return pkgerrors.NewIOError("write", tmpPath, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return pkgerrors.NewIOError("flush", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.NewIOError("close", tmpPath, err)
	}

	// Each chunk dispatch gets a distinct workerID, so the final path is
	// unique per flush: rename is the whole of the atomic commit.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.NewIOError("rename", finalPath, err)
	}
	return nil
}

// writeRecord serializes one record as:
// uint32 feature length, feature bytes, int32 docID, int32 count.
func writeRecord(w *bufio.Writer, rec record) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rec.feature)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(rec.feature); err != nil {
		return err
	}
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], uint32(rec.docID))
	if _, err := w.Write(idBuf[:]); err != nil {
		return err
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(rec.count))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	return nil
}
