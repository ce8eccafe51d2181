package diffmerge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/readfile"
	"github.com/vcsforge/rcsmerge/internal/seq"
)

func lineSeq(t *testing.T, content string) *seq.Sequence {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	rf, err := readfile.Open(p, 1<<20, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { rf.Close() })
	s, err := seq.New(rf, seq.Flags{Mode: seq.Line})
	require.NoError(t, err)
	return s
}

func budget() diffanalyze.Budget {
	return diffanalyze.Budget{Threshold: 1000, Limit1: 10000, Limit2: 50000, MinFloor: 42}
}

func opts(grid config.GridMode) Options { return Options{Grid: grid} }

// selections concatenates all Selections into a single OR for easy
// "did we ever see bit X" assertions, and separately exposes the ordered
// list for transition checks.
func bitsSeen(r *Result) SelBits {
	var all SelBits
	for _, b := range r.Selections {
		all |= b
	}
	return all
}

// TestMergeIdentity covers spec.md §8.1 invariant 3: base==leg1==leg2 yields
// base verbatim, no conflicts.
func TestMergeIdentity(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nb\nc\n")
	leg2 := lineSeq(t, "a\nb\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nb\nc\n", string(r.Bytes))
	assert.Equal(t, 0, r.ChunksConflict)
	assert.Equal(t, 0, r.ChunksTheirs)
	assert.Equal(t, 0, r.ChunksYours)
}

// TestMergeTheirsOnly covers spec.md §8.1 invariant 4.
func TestMergeTheirsOnly(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nB\nc\n")
	leg2 := lineSeq(t, "a\nb\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nB\nc\n", string(r.Bytes))
	assert.Equal(t, 1, r.ChunksTheirs)
	assert.Equal(t, 0, r.ChunksYours)
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeYoursOnly covers spec.md §8.1 invariant 5 (symmetric to 4).
func TestMergeYoursOnly(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nb\nc\n")
	leg2 := lineSeq(t, "a\nB\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nB\nc\n", string(r.Bytes))
	assert.Equal(t, 0, r.ChunksTheirs)
	assert.Equal(t, 1, r.ChunksYours)
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeDisjoint covers spec.md §8.1 invariant 6: non-overlapping edits
// merge to their union with no conflict.
func TestMergeDisjoint(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\nd\ne\n")
	leg1 := lineSeq(t, "A\nb\nc\nd\ne\n")
	leg2 := lineSeq(t, "a\nb\nc\nd\nE\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, "A\nb\nc\nd\nE\n", string(r.Bytes))
	assert.Equal(t, 1, r.ChunksTheirs)
	assert.Equal(t, 1, r.ChunksYours)
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeBothSame covers spec.md scenario S3: both legs make the
// identical edit — no conflict, counted as a "both" chunk.
func TestMergeBothSame(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nB\nc\n")
	leg2 := lineSeq(t, "a\nB\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nB\nc\n", string(r.Bytes))
	assert.Equal(t, 1, r.ChunksBoth)
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeConflict covers spec.md §8.1 invariant 7: conflicting overlapping
// edits surface as a conflict segment run tagging base/leg1/leg2 content,
// leaving marker-line insertion to the caller (ClientMerge).
func TestMergeConflict(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nTHEIRS\nc\n")
	leg2 := lineSeq(t, "a\nYOURS\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))
	assert.Equal(t, 1, r.ChunksConflict)
	bits := bitsSeen(r)
	assert.NotZero(t, bits&SelConf)
	// Exactly one conflict run: base, then leg1, then leg2 content.
	var confSegs []SelBits
	for _, b := range r.Selections {
		if b&SelConf != 0 {
			confSegs = append(confSegs, b)
		}
	}
	require.Len(t, confSegs, 3)
	assert.Equal(t, SelConf|SelBase, confSegs[0])
	assert.Equal(t, SelConf|SelLeg1, confSegs[1])
	assert.Equal(t, SelConf|SelLeg2, confSegs[2])
	assert.Contains(t, string(r.Bytes), "b\n")
	assert.Contains(t, string(r.Bytes), "THEIRS\n")
	assert.Contains(t, string(r.Bytes), "YOURS\n")
}

// TestMergeNoConflictThreeLine: a single line changed by only one leg merges
// cleanly under the Guarded grid.
func TestMergeNoConflictThreeLine(t *testing.T) {
	base := lineSeq(t, "one\ntwo\nthree\n")
	leg1 := lineSeq(t, "one\ntwo\nthree\n")
	leg2 := lineSeq(t, "one\nTWO\nthree\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Guarded))
	assert.Equal(t, "one\nTWO\nthree\n", string(r.Bytes))
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeTwoWayAgree: TwoWay grid fakes an empty base; when leg1==leg2
// entirely, the whole file is a "both" run with no conflicts.
func TestMergeTwoWayAgree(t *testing.T) {
	leg1 := lineSeq(t, "a\nb\nc\n")
	leg2 := lineSeq(t, "a\nb\nc\n")
	r := Merge(nil, leg1, leg2, budget(), opts(config.TwoWay))
	assert.Equal(t, "a\nb\nc\n", string(r.Bytes))
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestMergeTwoWayConflict: any differing span between leg1/leg2 is a
// conflict under TwoWay, since there is no base to attribute ownership to.
func TestMergeTwoWayConflict(t *testing.T) {
	leg1 := lineSeq(t, "a\nb\nc\n")
	leg2 := lineSeq(t, "a\nB\nc\n")
	r := Merge(nil, leg1, leg2, budget(), opts(config.TwoWay))
	assert.Equal(t, 1, r.ChunksConflict)
	bits := bitsSeen(r)
	assert.NotZero(t, bits&SelConf)
	assert.Zero(t, bits&SelBase) // TwoWay never attributes content to base
}

// TestScenarioS1 is spec scenario S1: three-line three-way, no conflict.
func TestScenarioS1(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	yours := lineSeq(t, "a\nB\nc\n")  // leg2
	theirs := lineSeq(t, "a\nb\nC\n") // leg1
	r := Merge(base, theirs, yours, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nB\nC\n", string(r.Bytes))
	assert.Equal(t, 1, r.ChunksYours)
	assert.Equal(t, 1, r.ChunksTheirs)
	assert.Equal(t, 0, r.ChunksBoth)
	assert.Equal(t, 0, r.ChunksConflict)
}

// TestScenarioS2 is spec scenario S2: three-way conflict.
func TestScenarioS2(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	yours := lineSeq(t, "a\nY\nc\n")  // leg2
	theirs := lineSeq(t, "a\nT\nc\n") // leg1
	r := Merge(base, theirs, yours, budget(), opts(config.Optimal))
	out := string(r.Bytes)
	assert.Equal(t, 0, r.ChunksYours)
	assert.Equal(t, 0, r.ChunksTheirs)
	assert.Equal(t, 0, r.ChunksBoth)
	assert.Equal(t, 1, r.ChunksConflict)
	for _, want := range []string{"a\n", "b\n", "T\n", "Y\n", "c\n"} {
		assert.Contains(t, out, want)
	}
}

// TestScenarioS3 is spec scenario S3: identical legs merge as a "both" chunk.
func TestScenarioS3(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	yours := lineSeq(t, "a\nX\nc\n")
	theirs := lineSeq(t, "a\nX\nc\n")
	r := Merge(base, theirs, yours, budget(), opts(config.Optimal))
	assert.Equal(t, "a\nX\nc\n", string(r.Bytes))
	assert.Equal(t, 0, r.ChunksYours)
	assert.Equal(t, 0, r.ChunksTheirs)
	assert.Equal(t, 0, r.ChunksConflict)
	assert.Equal(t, 1, r.ChunksBoth)
}

// TestReaderPullAPI exercises the pull-based Read contract: each call
// returns the SelBits for the bytes it just produced, and reads never
// straddle a segment boundary.
func TestReaderPullAPI(t *testing.T) {
	base := lineSeq(t, "a\nb\nc\n")
	leg1 := lineSeq(t, "a\nB\nc\n")
	leg2 := lineSeq(t, "a\nb\nc\n")
	r := Merge(base, leg1, leg2, budget(), opts(config.Optimal))

	rd := NewReader(r)
	var out []byte
	buf := make([]byte, 1024)
	sawLeg1 := false
	for {
		n, bits, state := rd.Read(buf)
		if n == 0 {
			assert.Equal(t, StateDone, state)
			break
		}
		out = append(out, buf[:n]...)
		if bits&SelLeg1 != 0 && bits&SelLeg2 == 0 {
			sawLeg1 = true
			assert.Equal(t, StateLeg1, state)
		}
	}
	assert.True(t, sawLeg1)
	assert.Equal(t, "a\nB\nc\n", string(out))
}
