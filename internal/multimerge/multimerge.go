// Package multimerge implements C6 of the rcsmerge design: overlaying an
// ordered series of file revisions into a single line-chain, each line
// tagged with the revision range it is live in (spec.md §4.6), and
// tracking cross-lineage "credit" for annotation across integrations.
//
// The MergeLine chain mirrors diffanalyze's Snake list: a singly linked
// list owned by one container, walked forward only.
package multimerge

import (
	"os"

	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/readfile"
	"github.com/vcsforge/rcsmerge/internal/seq"
)

// maxLineLen truncates pathologically long lines (spec.md §4.6, §9 Open
// Question c): preserved exactly at 10000 bytes per the documented
// original behavior.
const maxLineLen = 10000

// MergeLine is one line in an annotation chain: live in revisions
// [LowerRev, UpperRev] of its owning MultiMerge, with From a weak
// back-reference to the line in another MultiMerge that first contributed
// this content (spec.md §3, §9 "Cyclic/linked structures").
type MergeLine struct {
	Next     *MergeLine
	LowerRev int
	UpperRev int
	LowerChg int
	UpperChg int
	From     *MergeLine
	Bytes    []byte
}

// MultiMerge accumulates an ordered series of revisions into a MergeLine
// chain.
type MultiMerge struct {
	head, tail *MergeLine
	lastRev    int
	lastChg    int
	seeded     bool
}

// New returns an empty MultiMerge ready for Add.
func New() *MultiMerge { return &MultiMerge{} }

// Head returns the first MergeLine in the chain (nil if Add has never been
// called).
func (m *MultiMerge) Head() *MergeLine { return m.head }

func truncate(b []byte) []byte {
	if len(b) <= maxLineLen {
		return b
	}
	out := make([]byte, maxLineLen+1)
	copy(out, b[:maxLineLen])
	out[maxLineLen] = '\n'
	return out
}

func lineBytes(s *seq.Sequence, i int) []byte {
	start, end := s.Offset(i), s.Offset(i+1)
	buf := make([]byte, end-start)
	f := s.File()
	f.Seek(start)
	f.ReadInto(buf)
	return truncate(buf)
}

func newSeqFromFile(path string, mmapLimit int64, bufSize int) (*seq.Sequence, func(), error) {
	rf, err := readfile.Open(path, mmapLimit, bufSize)
	if err != nil {
		return nil, nil, err
	}
	s, err := seq.New(rf, seq.Flags{Mode: seq.Line})
	if err != nil {
		rf.Close()
		return nil, nil, err
	}
	return s, func() { rf.Close() }, nil
}

// seqFromBytes materializes an in-memory line list as a temp-file-backed
// Sequence, so it can be diffed by diffanalyze (spec.md §4.6's
// FileMultiMerge shim reads only the lines live at a given rev; this is
// the concrete reification of that view for C3's file-backed Sequence).
func seqFromBytes(buf []byte) (*seq.Sequence, func(), error) {
	f, err := os.CreateTemp("", "multimerge-*")
	if err != nil {
		return nil, nil, err
	}
	path := f.Name()
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return nil, nil, err
	}
	f.Close()
	s, closeSeq, err := newSeqFromFile(path, 1<<20, 4096)
	if err != nil {
		os.Remove(path)
		return nil, nil, err
	}
	return s, func() { closeSeq(); os.Remove(path) }, nil
}

// seed initializes the chain with s's lines, each tagged [revID, revID].
func (m *MultiMerge) seed(s *seq.Sequence, revID, chgID int) {
	var tail *MergeLine
	for i := 0; i < s.Count(); i++ {
		ln := &MergeLine{LowerRev: revID, UpperRev: revID, LowerChg: chgID, UpperChg: chgID, Bytes: lineBytes(s, i)}
		if tail != nil {
			tail.Next = ln
		} else {
			m.head = ln
		}
		tail = ln
	}
	m.tail = tail
	m.lastRev = revID
	m.lastChg = chgID
	m.seeded = true
}

// liveLines returns, in chain order, every MergeLine still live as of
// m.lastRev (i.e. not yet superseded by an earlier Add).
func (m *MultiMerge) liveLines() []*MergeLine {
	var out []*MergeLine
	for l := m.head; l != nil; l = l.Next {
		if l.UpperRev == m.lastRev {
			out = append(out, l)
		}
	}
	return out
}

// Add diffs the current chain's live lines against file's lines and folds
// the result in (spec.md §4.6 MultiMerge::add). The first call seeds the
// chain directly without diffing.
func (m *MultiMerge) Add(path string, revID, chgID int, mmapLimit int64, bufSize int, budget diffanalyze.Budget) error {
	newFile, closeNew, err := newSeqFromFile(path, mmapLimit, bufSize)
	if err != nil {
		return err
	}
	defer closeNew()

	if !m.seeded {
		m.seed(newFile, revID, chgID)
		return nil
	}

	live := m.liveLines()
	var liveBuf []byte
	for _, l := range live {
		liveBuf = append(liveBuf, l.Bytes...)
	}
	oldSeq, closeOld, err := seqFromBytes(liveBuf)
	if err != nil {
		return err
	}
	defer closeOld()

	d := diffanalyze.New(oldSeq, newFile, budget)

	// insertBefore[p] holds the new MergeLines (in order) that a new-only
	// run places immediately before live[p]; insertBefore[len(live)] holds
	// a trailing append.
	insertBefore := make(map[int][]*MergeLine)
	for s := d.Snakes(); s != nil; s = s.Next {
		// Matched run [s.X, s.U): these old (live) lines survive into
		// revID.
		for k := s.X; k < s.U && k < len(live); k++ {
			live[k].UpperRev = revID
			live[k].UpperChg = chgID
		}
		if s.Next == nil {
			break
		}
		n := s.Next
		// Old-only run [s.U, n.X): lines disappear; upper_rev stays as the
		// prior revision (already true — nothing to update).
		// New-only run [s.V, n.Y): insert new MergeLines right before the
		// old position n.X.
		for ni := s.V; ni < n.Y; ni++ {
			ln := &MergeLine{LowerRev: revID, UpperRev: revID, LowerChg: chgID, UpperChg: chgID, Bytes: lineBytes(newFile, ni)}
			insertBefore[n.X] = append(insertBefore[n.X], ln)
		}
	}

	m.rebuild(live, insertBefore)
	m.lastRev = revID
	m.lastChg = chgID
	return nil
}

// rebuild splices insertBefore's new lines into the full chain at the
// positions keyed by live-index, without disturbing any non-live
// (already-superseded) lines interleaved elsewhere in the chain.
func (m *MultiMerge) rebuild(live []*MergeLine, insertBefore map[int][]*MergeLine) {
	liveSet := make(map[*MergeLine]int, len(live))
	for i, l := range live {
		liveSet[l] = i
	}

	var newHead, newTail *MergeLine
	appendNode := func(n *MergeLine) {
		if newTail != nil {
			newTail.Next = n
		} else {
			newHead = n
		}
		newTail = n
	}
	emitInsertions := func(p int) {
		for _, n := range insertBefore[p] {
			appendNode(n)
		}
	}

	for l := m.head; l != nil; {
		next := l.Next
		if idx, ok := liveSet[l]; ok {
			emitInsertions(idx)
		}
		l.Next = nil
		appendNode(l)
		l = next
	}
	emitInsertions(len(live))

	m.head = newHead
	m.tail = newTail
}

// MultiMultiMerge tracks several MultiMerge lineages and propagates credit
// between them (spec.md §4.6 MultiMultiMerge::credit).
type MultiMultiMerge struct {
	lineages map[string]*MultiMerge
}

// NewMultiMultiMerge returns an empty cross-lineage tracker.
func NewMultiMultiMerge() *MultiMultiMerge {
	return &MultiMultiMerge{lineages: make(map[string]*MultiMerge)}
}

// Register associates a named lineage (e.g. a depot path) with its
// MultiMerge chain.
func (mm *MultiMultiMerge) Register(name string, m *MultiMerge) { mm.lineages[name] = m }

// Credit diffs srcID's revision at eRev against tgtID's revision at tRev
// and, for each matched line pair satisfying spec.md §4.6's rule, sets the
// target line's From back-pointer to the source line.
func (mm *MultiMultiMerge) Credit(srcID string, sRev, eRev int, tgtID string, tRev int, budget diffanalyze.Budget) error {
	src := mm.lineages[srcID]
	tgt := mm.lineages[tgtID]
	if src == nil || tgt == nil {
		return nil
	}
	srcLines := linesAtRev(src, eRev)
	tgtLines := linesAtRev(tgt, tRev)

	var srcBuf, tgtBuf []byte
	for _, l := range srcLines {
		srcBuf = append(srcBuf, l.Bytes...)
	}
	for _, l := range tgtLines {
		tgtBuf = append(tgtBuf, l.Bytes...)
	}
	srcSeq, closeSrc, err := seqFromBytes(srcBuf)
	if err != nil {
		return err
	}
	defer closeSrc()
	tgtSeq, closeTgt, err := seqFromBytes(tgtBuf)
	if err != nil {
		return err
	}
	defer closeTgt()

	d := diffanalyze.New(srcSeq, tgtSeq, budget)
	for s := d.Snakes(); s != nil; s = s.Next {
		for k := 0; k < s.Len(); k++ {
			si := s.X + k
			ti := s.Y + k
			if si >= len(srcLines) || ti >= len(tgtLines) {
				continue
			}
			source := srcLines[si]
			target := tgtLines[ti]
			if source.LowerRev < sRev {
				continue
			}
			if target.LowerChg <= source.LowerChg {
				continue
			}
			if target.From != nil && target.From.LowerChg <= source.LowerChg {
				continue
			}
			target.From = source
		}
	}
	return nil
}

// linesAtRev returns the MergeLines of m live at rev (LowerRev <= rev <=
// UpperRev), in chain order — the FileMultiMerge read-only view spec.md
// §4.6 describes.
func linesAtRev(m *MultiMerge, rev int) []*MergeLine {
	var out []*MergeLine
	for l := m.head; l != nil; l = l.Next {
		if l.LowerRev <= rev && rev <= l.UpperRev {
			out = append(out, l)
		}
	}
	return out
}
