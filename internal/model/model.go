// Package model implements the persisted model artifact (spec §3
// "Model", §6 "Persisted outputs"): a framed binary encoding of the
// learned Naive Bayes parameters and compiled scanner, compressed and
// base64-wrapped for storage as a single text file.
package model

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/scanner"
)

var magic = [4]byte{'L', 'I', 'D', 'M'}

const formatVersion uint16 = 1

// Model is the full persisted artifact: ptc, pc, classes, and the
// compiled scanner's nextmove/output tables (spec §3 "Model").
type Model struct {
	PTC     [][]float64 // [feature][class]
	PC      []float64   // [class]
	Classes []string
	Scanner *scanner.Scanner
}

// Write serializes m to path as base64(gzip(frame)). The original
// implementation wraps its pickle in bzip2; Go's standard library
// bzip2 package is decode-only, so gzip is substituted here as the
// compression layer (see DESIGN.md).
func Write(path string, m *Model) error {
	var frame bytes.Buffer
	if err := encodeFrame(&frame, m); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIOError("create", path, err)
	}
	defer f.Close()

	enc := base64.NewEncoder(base64.StdEncoding, f)
	gz := gzip.NewWriter(enc)
	if _, err := gz.Write(frame.Bytes()); err != nil {
		return pkgerrors.NewIOError("write", path, err)
	}
	if err := gz.Close(); err != nil {
		return pkgerrors.NewIOError("close", path, err)
	}
	if err := enc.Close(); err != nil {
		return pkgerrors.NewIOError("close", path, err)
	}
	return nil
}

// Read decodes a model previously written by Write.
func Read(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewIOError("open", path, err)
	}
	defer f.Close()

	dec := base64.NewDecoder(base64.StdEncoding, f)
	gz, err := gzip.NewReader(dec)
	if err != nil {
		return nil, pkgerrors.NewFormatError(path, err)
	}
	defer gz.Close()

	m, err := decodeFrame(bufio.NewReader(gz))
	if err != nil {
		return nil, pkgerrors.NewFormatError(path, err)
	}
	return m, nil
}

func encodeFrame(buf *bytes.Buffer, m *Model) error {
	buf.Write(magic[:])
	writeUint16(buf, formatVersion)

	numFeatures := len(m.PTC)
	numClasses := len(m.PC)
	writeUint32(buf, uint32(numFeatures))
	writeUint32(buf, uint32(numClasses))

	for _, row := range m.PTC {
		if len(row) != numClasses {
			return fmt.Errorf("ptc row has %d classes, want %d", len(row), numClasses)
		}
		for _, v := range row {
			writeFloat64(buf, v)
		}
	}
	for _, v := range m.PC {
		writeFloat64(buf, v)
	}

	for _, class := range m.Classes {
		writeUint32(buf, uint32(len(class)))
		buf.WriteString(class)
	}

	return encodeScanner(buf, m.Scanner)
}

func encodeScanner(buf *bytes.Buffer, sc *scanner.Scanner) error {
	if sc.NextMove32 != nil {
		buf.WriteByte(1)
		writeUint32(buf, uint32(len(sc.NextMove32)))
		for _, v := range sc.NextMove32 {
			writeUint32(buf, v)
		}
	} else {
		buf.WriteByte(0)
		writeUint32(buf, uint32(len(sc.NextMove16)))
		for _, v := range sc.NextMove16 {
			writeUint16(buf, v)
		}
	}

	states := make([]int, 0, len(sc.Output))
	for state := range sc.Output {
		states = append(states, state)
	}
	sort.Ints(states)

	writeUint32(buf, uint32(len(states)))
	for _, state := range states {
		writeUint32(buf, uint32(state))
		feats := sc.Output[state]
		writeUint32(buf, uint32(len(feats)))
		for _, idx := range feats {
			writeUint32(buf, uint32(idx))
		}
	}
	return nil
}

func decodeFrame(r *bufio.Reader) (*Model, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("bad magic %q", gotMagic)
	}
	version, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", version)
	}

	numFeatures, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	numClasses, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	ptc := make([][]float64, numFeatures)
	for f := range ptc {
		row := make([]float64, numClasses)
		for c := range row {
			v, err := readFloat64(r)
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		ptc[f] = row
	}

	pc := make([]float64, numClasses)
	for c := range pc {
		v, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		pc[c] = v
	}

	classes := make([]string, numClasses)
	for c := range classes {
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		nameBuf := make([]byte, n)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, err
		}
		classes[c] = string(nameBuf)
	}

	sc, err := decodeScanner(r)
	if err != nil {
		return nil, err
	}

	return &Model{PTC: ptc, PC: pc, Classes: classes, Scanner: sc}, nil
}

func decodeScanner(r *bufio.Reader) (*scanner.Scanner, error) {
	widthFlag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	sc := &scanner.Scanner{Output: make(map[int][]int)}
	if widthFlag == 1 {
		sc.NextMove32 = make([]uint32, length)
		for i := range sc.NextMove32 {
			v, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			sc.NextMove32[i] = v
		}
		sc.NumStates = len(sc.NextMove32) / 256
	} else {
		sc.NextMove16 = make([]uint16, length)
		for i := range sc.NextMove16 {
			v, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			sc.NextMove16[i] = v
		}
		sc.NumStates = len(sc.NextMove16) / 256
	}

	numStates, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numStates; i++ {
		state, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		numFeats, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		feats := make([]int, numFeats)
		for j := range feats {
			v, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			feats[j] = int(v)
		}
		sc.Output[int(state)] = feats
	}
	return sc, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func readUint16(r *bufio.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readFloat64(r *bufio.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}
