// Package seq implements C2 of the rcsmerge design: Sequence and its family
// of Sequencers. A Sequence tokenizes a ReadFile into a contiguous array of
// hashed elements ("lines" in the general sense — words, character classes,
// or literal lines depending on Mode) so DiffAnalyze can operate on element
// indices rather than raw bytes.
package seq

import (
	"github.com/vcsforge/rcsmerge/internal/readfile"
)

// Mode selects the Sequencer used to tokenize a file (spec.md §4.2).
type Mode int

const (
	// Line splits on '\n' or EOF; exact equality is byte equality.
	Line Mode = iota
	// Word splits on whitespace.
	Word
	// WClass splits between character classes (CR, LF, alnum, whitespace,
	// other); used for word-level diffs.
	WClass
	// DashL folds all line-ending styles to '\n' ("ignore line endings").
	DashL
	// DashB folds runs of internal whitespace to one space ("ignore
	// whitespace amount").
	DashB
	// DashW ignores whitespace entirely ("ignore all whitespace").
	DashW
)

// Flags configures Sequence construction.
type Flags struct {
	Mode Mode
}

// elemHash is the multiplier in spec.md §4.2's rolling hash: h' = 293*h + b.
const elemHash = 293

// Sequence is an indexed, immutable view of a file as an array of elements.
// Element i's byte span is [offsets[i], offsets[i+1]); offsets[0] == 0 and
// offsets[count] == file size.
type Sequence struct {
	file    *readfile.ReadFile
	offsets []int64
	hashes  []uint32
	mode    Mode
}

// New tokenizes file according to flags.Mode and returns the resulting
// Sequence. The offset-table growth policy follows spec.md §4.2: initial
// capacity 200 + size/32, then grown by observed average element length,
// then doubling thereafter.
func New(file *readfile.ReadFile, flags Flags) (*Sequence, error) {
	s := &Sequence{file: file, mode: flags.Mode}
	cap0 := 200 + int(file.Size()/32)
	s.offsets = make([]int64, 1, cap0)
	s.hashes = make([]uint32, 0, cap0)
	s.offsets[0] = 0

	sc := sequencerFor(flags.Mode)
	if err := sc.load(s, file); err != nil {
		return nil, err
	}
	if len(s.offsets) == 1 || s.offsets[len(s.offsets)-1] != file.Size() {
		s.offsets = append(s.offsets, file.Size())
	}
	return s, nil
}

// store appends a new element boundary at the given hash; called by
// sequencers during load. Growth follows the documented reallocation
// policy; Go's append already amortizes this, but we pre-size per spec to
// avoid pathological growth on the very first realloc.
func (s *Sequence) store(offset int64, hash uint32) {
	if len(s.offsets) == cap(s.offsets) && len(s.offsets) > 1 {
		avg := s.offsets[len(s.offsets)-1] / int64(len(s.offsets))
		if avg < 1 {
			avg = 1
		}
		growth := int(s.file.Size()/avg) + 16
		if cap(s.offsets) > 200+int(s.file.Size()/32) {
			// Past the first reallocation: double.
			growth = len(s.offsets)
		}
		bigger := make([]int64, len(s.offsets), len(s.offsets)+growth)
		copy(bigger, s.offsets)
		s.offsets = bigger
	}
	s.offsets = append(s.offsets, offset)
	s.hashes = append(s.hashes, hash)
}

// Count returns the number of elements in the sequence.
func (s *Sequence) Count() int { return len(s.hashes) }

// Hash returns the stored hash of element i.
func (s *Sequence) Hash(i int) uint32 { return s.hashes[i] }

// Offset returns the byte offset of element i's start.
func (s *Sequence) Offset(i int) int64 { return s.offsets[i] }

// Length returns the byte length of element i.
func (s *Sequence) Length(i int) int64 { return s.offsets[i+1] - s.offsets[i] }

// File returns the backing ReadFile.
func (s *Sequence) File() *readfile.ReadFile { return s.file }

// ProbablyEqual reports whether element a of s and element b of other are
// likely equal, by comparing length and hash only. False positives are
// possible and must be confirmed with Equal.
func (s *Sequence) ProbablyEqual(a int, other *Sequence, b int) bool {
	if s.Length(a) != other.Length(b) {
		// DashL tolerates a 1-byte length difference from a trailing
		// line-ender, and DashB/DashW ignore whitespace bytes entirely;
		// both are settled by the sequencer's equal, not here.
		if s.mode != DashL && s.mode != DashB && s.mode != DashW {
			return false
		}
	}
	return s.hashes[a] == other.hashes[b]
}

// Equal performs the exact equality check for element a of s against element
// b of other: length/hash short-circuit via ProbablyEqual, then a byte
// comparison (or whitespace-normalized comparison for the DashB/DashW
// sequencers) through the owning ReadFiles.
func (s *Sequence) Equal(a int, other *Sequence, b int) bool {
	if !s.ProbablyEqual(a, other, b) {
		return false
	}
	sc := sequencerFor(s.mode)
	return sc.equal(s, a, other, b)
}

func rollHash(h uint32, b byte) uint32 {
	return elemHash*h + uint32(b)
}
