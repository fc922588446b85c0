package tally

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/types"
)

// Record is a single (feature, docID, count) tuple read back from a
// bucket. Buckets are opaque to readers except through Decode, which
// yields records in arrival order (spec §3 "Bucket").
type Record struct {
	Feature []byte
	DocID   types.DocID
	Count   int32
}

// Decode reads every worker file in bucketDir, in a deterministic
// (sorted-by-filename) order, and returns their records concatenated.
// The union of a bucket's worker files is the bucket's full contents
// (spec §4.C step 5).
func Decode(bucketDir string) ([]Record, error) {
	entries, err := os.ReadDir(bucketDir)
	if err != nil {
		return nil, pkgerrors.NewIOError("readdir", bucketDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		path := filepath.Join(bucketDir, name)
		fileRecords, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
	}
	return records, nil
}

func decodeFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewIOError("open", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []Record
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.NewFormatError(path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readRecord(r *bufio.Reader) (Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Record{}, err
	}
	featLen := binary.LittleEndian.Uint32(lenBuf[:])

	feature := make([]byte, featLen)
	if _, err := io.ReadFull(r, feature); err != nil {
		return Record{}, err
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return Record{}, err
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return Record{}, err
	}

	return Record{
		Feature: feature,
		DocID:   types.DocID(binary.LittleEndian.Uint32(idBuf[:])),
		Count:   int32(binary.LittleEndian.Uint32(countBuf[:])),
	}, nil
}

// Cleanup removes every bucket directory. Called at the end of a
// successful run unless debug output was requested or the LD feature
// set was supplied directly (spec §5 "Resource cleanup").
func Cleanup(bucketDirs []string) error {
	for _, dir := range bucketDirs {
		if err := os.RemoveAll(dir); err != nil {
			return pkgerrors.NewIOError("remove", dir, err)
		}
	}
	return nil
}
