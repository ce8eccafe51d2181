package multimerge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
)

func budget() diffanalyze.Budget {
	return diffanalyze.Budget{Threshold: 1000, Limit1: 10000, Limit2: 50000, MinFloor: 42}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func chainSlice(m *MultiMerge) []*MergeLine {
	var out []*MergeLine
	for l := m.Head(); l != nil; l = l.Next {
		out = append(out, l)
	}
	return out
}

// TestScenarioS6 is spec scenario S6: annotation across two revisions.
func TestScenarioS6(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(writeTemp(t, "a\nb\n"), 1, 10, 1<<20, 4096, budget()))
	require.NoError(t, m.Add(writeTemp(t, "a\nx\nb\n"), 2, 20, 1<<20, 4096, budget()))

	lines := chainSlice(m)
	require.Len(t, lines, 3)

	assert.Equal(t, "a\n", string(lines[0].Bytes))
	assert.Equal(t, 1, lines[0].LowerRev)
	assert.Equal(t, 2, lines[0].UpperRev)

	assert.Equal(t, "x\n", string(lines[1].Bytes))
	assert.Equal(t, 2, lines[1].LowerRev)
	assert.Equal(t, 2, lines[1].UpperRev)

	assert.Equal(t, "b\n", string(lines[2].Bytes))
	assert.Equal(t, 1, lines[2].LowerRev)
	assert.Equal(t, 2, lines[2].UpperRev)
}

// TestSeedSingleRevision covers the first Add call: every line is tagged
// [rev,rev] with no diffing performed.
func TestSeedSingleRevision(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(writeTemp(t, "one\ntwo\nthree\n"), 1, 100, 1<<20, 4096, budget()))
	lines := chainSlice(m)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, 1, l.LowerRev)
		assert.Equal(t, 1, l.UpperRev)
		assert.Equal(t, 100, l.LowerChg)
	}
}

// TestDeletedLineKeepsOldUpperRev: a line removed in a later revision
// retains the upper_rev of the revision it last appeared in.
func TestDeletedLineKeepsOldUpperRev(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(writeTemp(t, "a\nb\nc\n"), 1, 1, 1<<20, 4096, budget()))
	require.NoError(t, m.Add(writeTemp(t, "a\nc\n"), 2, 2, 1<<20, 4096, budget()))
	lines := chainSlice(m)
	require.Len(t, lines, 3)
	var b *MergeLine
	for _, l := range lines {
		if string(l.Bytes) == "b\n" {
			b = l
		}
	}
	require.NotNil(t, b)
	assert.Equal(t, 1, b.LowerRev)
	assert.Equal(t, 1, b.UpperRev) // disappeared after rev 1, never reached rev 2
}

// TestCredit exercises MultiMultiMerge.Credit: a line integrated verbatim
// from one lineage into another picks up a From back-pointer to its
// origin.
func TestCredit(t *testing.T) {
	src := New()
	require.NoError(t, src.Add(writeTemp(t, "alpha\nbeta\n"), 1, 5, 1<<20, 4096, budget()))

	tgt := New()
	require.NoError(t, tgt.Add(writeTemp(t, "alpha\nbeta\ngamma\n"), 1, 7, 1<<20, 4096, budget()))

	mmm := NewMultiMultiMerge()
	mmm.Register("src", src)
	mmm.Register("tgt", tgt)
	require.NoError(t, mmm.Credit("src", 1, 1, "tgt", 1, budget()))

	tgtLines := chainSlice(tgt)
	require.Len(t, tgtLines, 3)
	assert.Equal(t, "alpha\n", string(tgtLines[0].Bytes))
	require.NotNil(t, tgtLines[0].From)
	assert.Equal(t, "alpha\n", string(tgtLines[0].From.Bytes))
	assert.Equal(t, "beta\n", string(tgtLines[1].Bytes))
	require.NotNil(t, tgtLines[1].From)
	assert.Nil(t, tgtLines[2].From) // gamma has no source counterpart
}
