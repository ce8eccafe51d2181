package rcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
)

func budget() diffanalyze.Budget {
	return diffanalyze.Budget{Threshold: 1000, Limit1: 10000, Limit2: 50000, MinFloor: 42}
}

func rev(s string) RevId {
	r, err := ParseRevId(s)
	if err != nil {
		panic(err)
	}
	return r
}

// TestScenarioS4 is spec scenario S4: start from an empty archive, check in
// two trunk revisions, then verify checkout of each and the exact delta
// representation of the demoted first revision.
func TestScenarioS4(t *testing.T) {
	a := &RcsArchive{}

	require.NoError(t, Checkin(a, []byte("line one\n"), rev("1.1"), "2026.01.01.00.00.00", "alice", "Exp", budget()))
	assert.Equal(t, "1.1", a.Head.String())

	require.NoError(t, Checkin(a, []byte("line one\nline two\n"), rev("1.2"), "2026.01.02.00.00.00", "alice", "Exp", budget()))
	assert.Equal(t, "1.2", a.Head.String())

	out, err := Checkout(a, rev("1.1"))
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(out))

	out, err = Checkout(a, rev("1.2"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(out))

	head, err := a.FindRevision(a.Head)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(head.Text.Bytes))

	r11, err := a.FindRevision(rev("1.1"))
	require.NoError(t, err)
	assert.Equal(t, "d2 1\n", string(r11.Text.Bytes))
}

// TestRevIdCmpEqualIsReflexive covers invariant 12: RevCmp(x,x) == Equal.
func TestRevIdCmpEqualIsReflexive(t *testing.T) {
	for _, s := range []string{"1.1", "1.9", "2.4", "1.3.1.2"} {
		r := rev(s)
		assert.Equal(t, Equal, RevCmp(r, r), s)
	}
}

func TestRevCmpTrunkDirection(t *testing.T) {
	assert.Equal(t, UpTrunk, RevCmp(rev("1.5"), rev("1.3")))
	assert.Equal(t, DownTrunk, RevCmp(rev("1.3"), rev("1.5")))
}

func TestRevCmpBranch(t *testing.T) {
	assert.Equal(t, AtBranch, RevCmp(rev("1.3.1.2"), rev("1.3")))
	// t is a proper prefix of c here, not the other way around: per the
	// documented taxonomy this is Mismatch, not OutBranch.
	assert.Equal(t, Mismatch, RevCmp(rev("1.3"), rev("1.3.1.2")))
}

// TestRevCmpWorkedExamples pins RevCmp against the worked examples in the
// RcsRevCmp doc comment this taxonomy is grounded on.
func TestRevCmpWorkedExamples(t *testing.T) {
	cases := []struct {
		t, c string
		want CmpKind
	}{
		{"1.1", "2.1", DownTrunk},
		{"2.1", "1.1", UpTrunk},
		{"1.2.2.1", "1.2.2.2", InBranch},
		{"1.2.2.2", "1.2.2.1", OutBranch},
		{"1.2.2.1", "1.2.2.1.1.1", Mismatch},
		{"1.2.2.1.1.1", "1.2.2.1", AtBranch},
		{"1.2.2.1.1.1", "1.2.2", NumBranch},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RevCmp(rev(c.t), rev(c.c)), "RevCmp(%s, %s)", c.t, c.c)
	}
}

// TestGenerateParseRoundTrip covers invariant 10: generate(parse(x)) is
// observably equal to x.
func TestGenerateParseRoundTrip(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("alpha\nbeta\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	require.NoError(t, Checkin(a, []byte("alpha\nbeta\ngamma\n"), rev("1.2"), "d2", "bob", "Exp", budget()))
	a.Desc = "a test file"
	a.Comment = "# "

	for _, fast := range []bool{false, true} {
		out := Generate(a, fast)
		reparsed, err := Parse(out, RevId{})
		require.NoError(t, err)
		assert.Equal(t, a.Head.String(), reparsed.Head.String())
		assert.Equal(t, a.Desc, reparsed.Desc)
		assert.Equal(t, a.Comment, reparsed.Comment)
		require.Len(t, reparsed.Revs, 2)

		c, err := Checkout(reparsed, rev("1.1"))
		require.NoError(t, err)
		assert.Equal(t, "alpha\nbeta\n", string(c))

		c, err = Checkout(reparsed, rev("1.2"))
		require.NoError(t, err)
		assert.Equal(t, "alpha\nbeta\ngamma\n", string(c))
	}
}

// TestDeleteHeadPromotesSuccessorToFullText covers the invariant that only
// the head stores full content: deleting the head must rewrite its
// successor from delta to full text before moving the head pointer.
func TestDeleteHeadPromotesSuccessorToFullText(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("one\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	require.NoError(t, Checkin(a, []byte("one\ntwo\n"), rev("1.2"), "d2", "bob", "Exp", budget()))

	require.NoError(t, Delete(a, rev("1.2"), budget()))
	assert.Equal(t, "1.1", a.Head.String())

	r11, err := a.FindRevision(rev("1.1"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(r11.Text.Bytes))

	out, err := Checkout(a, rev("1.1"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(out))

	_, err = Checkout(a, rev("1.2"))
	assert.Error(t, err)
}

func TestDeleteAllRevisionsEmptiesArchive(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("only\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	require.NoError(t, Delete(a, rev("1.1"), budget()))
	assert.True(t, a.Empty())
}

// TestDeleteInteriorRevisionPatchesAroundIt covers the non-head chain-walk
// case: deleting the middle of a three-revision trunk must repoint the
// predecessor directly at the surviving older revision, with its delta
// recomputed relative to that predecessor (spec.md §4.7.5), rather than
// merely flagging the middle revision dead in place.
func TestDeleteInteriorRevisionPatchesAroundIt(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("one\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	require.NoError(t, Checkin(a, []byte("one\ntwo\n"), rev("1.2"), "d2", "bob", "Exp", budget()))
	require.NoError(t, Checkin(a, []byte("one\ntwo\nthree\n"), rev("1.3"), "d3", "bob", "Exp", budget()))

	require.NoError(t, Delete(a, rev("1.2"), budget()))

	r12, err := a.FindRevision(rev("1.2"))
	require.NoError(t, err)
	assert.True(t, r12.Deleted)

	r13, err := a.FindRevision(rev("1.3"))
	require.NoError(t, err)
	assert.Equal(t, "1.1", r13.Next.String())

	out, err := Checkout(a, rev("1.1"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(out))

	out, err = Checkout(a, rev("1.3"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(out))

	_, err = Checkout(a, rev("1.2"))
	assert.Error(t, err)
}

// TestDeleteGenerateParseRoundTrip covers the interaction of Delete,
// Generate (which skips deleted revisions, spec.md §4.7.6), and Parse
// (which restores Deleted from a foreign archive's "dead" state): after a
// delete is persisted and reread, the deleted revision is gone entirely.
func TestDeleteGenerateParseRoundTrip(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("one\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	require.NoError(t, Checkin(a, []byte("one\ntwo\n"), rev("1.2"), "d2", "bob", "Exp", budget()))
	require.NoError(t, Delete(a, rev("1.2"), budget()))

	out := Generate(a, false)
	reparsed, err := Parse(out, RevId{})
	require.NoError(t, err)

	assert.Equal(t, "1.1", reparsed.Head.String())
	require.Len(t, reparsed.Revs, 1)
	_, err = reparsed.FindRevision(rev("1.2"))
	assert.Error(t, err)
}

func TestCheckinExistingRevisionErrors(t *testing.T) {
	a := &RcsArchive{}
	require.NoError(t, Checkin(a, []byte("x\n"), rev("1.1"), "d1", "bob", "Exp", budget()))
	err := Checkin(a, []byte("y\n"), rev("1.1"), "d2", "bob", "Exp", budget())
	assert.Error(t, err)
}

func TestFollowRevisionUnreachableTargetErrors(t *testing.T) {
	a := &RcsArchive{
		Head: rev("1.2"),
		Revs: []*RcsRev{
			{Name: rev("1.2"), Next: rev("1.1")},
			{Name: rev("1.1"), Next: rev("1.2")}, // malformed: cycles back
		},
	}
	_, err := a.FollowRevision(rev("1.2"), rev("1.9"))
	assert.Error(t, err)
}
