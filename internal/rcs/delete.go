package rcs

import "github.com/vcsforge/rcsmerge/internal/diffanalyze"

// Delete marks rev dead and unlinks it from the reconstruction chain
// (spec.md §4.7.5). rev, plus any run of its next-chain successors that
// are already dead and carry no branches, are marked deleted; the pointer
// that referred to rev — either a predecessor's next field or the
// archive's head — is then patched to the next surviving revision. If no
// surviving revision remains, the archive becomes empty.
//
// Deleting the head revision is special: the head alone stores full
// text, so the surviving successor must be reconstructed from the
// still-intact chain and promoted to full text before the head pointer
// moves. Deleting an interior revision is similar in kind: the surviving
// successor's stored delta is relative to its old, now-removed
// predecessor, so it must be recomputed relative to its new, closer one
// before the pointer is patched — otherwise every revision past the
// splice would reconstruct against content that no longer exists on the
// path.
func Delete(a *RcsArchive, rev RevId, budget diffanalyze.Budget) error {
	r, err := a.FindRevision(rev)
	if err != nil {
		return err
	}
	if r.Deleted {
		return nil
	}

	survivorName := r.Next
	for !survivorName.Empty() {
		s, err := a.FindRevision(survivorName)
		if err != nil {
			break
		}
		if s.Deleted && len(s.Branches) == 0 {
			survivorName = s.Next
			continue
		}
		break
	}

	if a.Head.String() == rev.String() {
		if survivorName.Empty() {
			r.Deleted = true
			r.State = "dead"
			a.Head = RevId{}
			return nil
		}
		content, err := Checkout(a, survivorName)
		if err != nil {
			return err
		}
		survivor, err := a.FindRevision(survivorName)
		if err != nil {
			return err
		}
		r.Deleted = true
		r.State = "dead"
		survivor.Text = RcsChunk{Bytes: content}
		a.Head = survivorName
		return nil
	}

	var prev *RcsRev
	for _, cand := range a.Revs {
		if cand.Next.String() == rev.String() {
			prev = cand
			break
		}
	}

	if survivorName.Empty() {
		r.Deleted = true
		r.State = "dead"
		if prev != nil {
			prev.Next = RevId{}
		}
		return nil
	}

	prevContent, err := Checkout(a, prev.Name)
	if err != nil {
		return err
	}
	survivorContent, err := Checkout(a, survivorName)
	if err != nil {
		return err
	}
	newDelta, err := rcsDiff(prevContent, survivorContent, budget)
	if err != nil {
		return err
	}
	survivor, err := a.FindRevision(survivorName)
	if err != nil {
		return err
	}

	r.Deleted = true
	r.State = "dead"
	survivor.Text = RcsChunk{Bytes: newDelta}
	if prev != nil {
		prev.Next = survivorName
	}
	return nil
}

// Empty reports whether the archive has no live head revision (every
// revision has been deleted, or none was ever checked in).
func (a *RcsArchive) Empty() bool { return a.Head.Empty() }
