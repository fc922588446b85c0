// Package scanner builds and runs the Aho-Corasick byte-stream scanner
// (spec §4.E): a packed nextmove table plus a state->feature-index
// output map that counts every occurrence of every feature in a single
// pass over a byte stream.
package scanner

import (
	"sort"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
)

const alphabetSize = 256

// maxStates16 is the largest state index that fits a uint16 nextmove
// cell (spec §4.E "Packing"). Beyond this the table widens to uint32.
const maxStates16 = 1<<16 - 1

// maxStates32 is the hard ceiling past which the pipeline gives up
// (spec §7 ScannerOverflow).
const maxStates32 = 1<<32 - 1

// Scanner is the compiled Aho-Corasick machine: a flat nextmove table
// (one of NextMove16 or NextMove32 is populated, never both) and a
// state->sorted-feature-index output map. It is immutable after Build.
type Scanner struct {
	features [][]byte // feature bytes, indexed by FeatureIndex

	NumStates  int
	NextMove16 []uint16 // populated when NumStates-1 fits in 16 bits
	NextMove32 []uint32 // populated otherwise

	// Output maps a state to the sorted (ascending) list of feature
	// indices recognized there. Sorted per spec §9 Open Question (iii).
	Output map[int][]int
}

// Build compiles a scanner over features using Algorithms 2-4 from
// spec §4.E: goto construction, BFS failure-link construction, and
// nextmove flattening with failure-edge elimination.
func Build(features [][]byte) (*Scanner, error) {
	type gotoKey struct {
		state int
		b     byte
	}

	goTo := make(map[gotoKey]int)
	output := make(map[int]map[int]bool) // state -> set(feature index)
	numStates := 0

	// Algorithm 2: goto construction.
	for featIdx, feat := range features {
		state := 0
		j := 0
		for j < len(feat) {
			if next, ok := goTo[gotoKey{state, feat[j]}]; ok {
				state = next
				j++
				continue
			}
			break
		}
		for p := j; p < len(feat); p++ {
			numStates++
			goTo[gotoKey{state, feat[p]}] = numStates
			state = numStates
		}
		if output[state] == nil {
			output[state] = make(map[int]bool)
		}
		output[state][featIdx] = true
	}

	// Root completion: self-loop for every byte with no goto edge.
	for b := 0; b < alphabetSize; b++ {
		if _, ok := goTo[gotoKey{0, byte(b)}]; !ok {
			goTo[gotoKey{0, byte(b)}] = 0
		}
	}

	// Algorithm 3: BFS failure-function construction.
	fail := make(map[int]int)
	queue := make([]int, 0, numStates)
	for b := 0; b < alphabetSize; b++ {
		s := goTo[gotoKey{0, byte(b)}]
		if s != 0 {
			queue = append(queue, s)
			fail[s] = 0
		}
	}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for b := 0; b < alphabetSize; b++ {
			s, ok := goTo[gotoKey{r, byte(b)}]
			if !ok {
				continue
			}
			queue = append(queue, s)
			state := fail[r]
			for {
				if next, ok := goTo[gotoKey{state, byte(b)}]; ok {
					fail[s] = next
					break
				}
				state = fail[state]
			}
			if out := output[fail[s]]; len(out) > 0 {
				if output[s] == nil {
					output[s] = make(map[int]bool)
				}
				for idx := range out {
					output[s][idx] = true
				}
			}
		}
	}

	// Algorithm 4: nextmove compilation, eliminating failure edges.
	nextMove := make(map[gotoKey]int)
	queue = queue[:0]
	for b := 0; b < alphabetSize; b++ {
		s := goTo[gotoKey{0, byte(b)}]
		nextMove[gotoKey{0, byte(b)}] = s
		if s != 0 {
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for b := 0; b < alphabetSize; b++ {
			if s, ok := goTo[gotoKey{r, byte(b)}]; ok {
				nextMove[gotoKey{r, byte(b)}] = s
				queue = append(queue, s)
			} else {
				nextMove[gotoKey{r, byte(b)}] = nextMove[gotoKey{fail[r], byte(b)}]
			}
		}
	}

	totalStates := numStates + 1
	if totalStates-1 > maxStates32 {
		return nil, pkgerrors.NewScannerOverflowError(totalStates, maxStates32)
	}

	sortedOutput := make(map[int][]int, len(output))
	for state, set := range output {
		idxs := make([]int, 0, len(set))
		for idx := range set {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		sortedOutput[state] = idxs
	}

	sc := &Scanner{
		features:  features,
		NumStates: totalStates,
		Output:    sortedOutput,
	}

	if totalStates-1 <= maxStates16 {
		sc.NextMove16 = make([]uint16, totalStates*alphabetSize)
		for state := 0; state < totalStates; state++ {
			for b := 0; b < alphabetSize; b++ {
				sc.NextMove16[state*alphabetSize+b] = uint16(nextMove[gotoKey{state, byte(b)}])
			}
		}
	} else {
		sc.NextMove32 = make([]uint32, totalStates*alphabetSize)
		for state := 0; state < totalStates; state++ {
			for b := 0; b < alphabetSize; b++ {
				sc.NextMove32[state*alphabetSize+b] = uint32(nextMove[gotoKey{state, byte(b)}])
			}
		}
	}

	return sc, nil
}

// next returns the state reached from state on byte b, regardless of
// which width the nextmove table was packed at.
func (s *Scanner) next(state int, b byte) int {
	if s.NextMove16 != nil {
		return int(s.NextMove16[state*alphabetSize+int(b)])
	}
	return int(s.NextMove32[state*alphabetSize+int(b)])
}

// Features returns the scanner's feature list, indexed by FeatureIndex.
func (s *Scanner) Features() [][]byte { return s.features }

// Count scans data in a single pass and returns per-feature occurrence
// counts, indexed by FeatureIndex, including overlapping occurrences
// (spec §4.E invariant).
func (s *Scanner) Count(data []byte) []int {
	counts := make([]int, len(s.features))
	state := 0
	for _, b := range data {
		state = s.next(state, b)
		for _, idx := range s.Output[state] {
			counts[idx]++
		}
	}
	return counts
}

// Scan streams data and invokes onFeature once per occurrence of each
// matched feature, in stream order. Used where a caller wants incidence
// events rather than a final count vector.
func (s *Scanner) Scan(data []byte, onFeature func(featureIndex int)) {
	state := 0
	for _, b := range data {
		state = s.next(state, b)
		for _, idx := range s.Output[state] {
			onFeature(idx)
		}
	}
}
