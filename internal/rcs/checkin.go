package rcs

import (
	"bytes"
	"fmt"

	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/diffformat"
)

// locate finds rev's lineal neighbors among the archive's trunk revisions
// (spec.md §4.7.4's RevPlace::locate): prev is the nearest existing
// revision newer than rev (if any), curr is rev itself if it already
// exists, next is the nearest existing revision older than rev (if any).
// Only trunk placement is supported; branch checkin is an Open Question
// left to DESIGN.md.
func locate(a *RcsArchive, rev RevId) (prev, curr, next *RcsRev) {
	revMinor := rev.Components()[1]
	for _, r := range a.Revs {
		if !r.Name.Trunk() {
			continue
		}
		if r.Name.String() == rev.String() {
			curr = r
			continue
		}
		rm := r.Name.Components()[1]
		switch {
		case rm > revMinor:
			if prev == nil || rm < prev.Name.Components()[1] {
				prev = r
			}
		case rm < revMinor:
			if next == nil || rm > next.Name.Components()[1] {
				next = r
			}
		}
	}
	return prev, curr, next
}

// rcsDiff renders the RCS edit script transforming aContent into bContent
// (spec.md §4.4 RCS format, computed via C3's Myers analysis).
func rcsDiff(aContent, bContent []byte, budget diffanalyze.Budget) ([]byte, error) {
	aSeq, aClean, err := seqFromBytes(aContent)
	if err != nil {
		return nil, err
	}
	defer aClean()
	bSeq, bClean, err := seqFromBytes(bContent)
	if err != nil {
		return nil, err
	}
	defer bClean()

	d := diffanalyze.New(aSeq, bSeq, budget)
	var buf bytes.Buffer
	diffformat.RCS(&buf, aSeq, bSeq, d.Snakes())
	return buf.Bytes(), nil
}

// Checkin adds new_file as revision rev (spec.md §4.7.4). The archive
// invariant maintained throughout is: only the head revision stores full
// content; every other revision stores a delta relative to its newer
// neighbor. Checking in a new head therefore rewrites the previous head's
// stored text into a delta, while the new content becomes the fresh full
// copy.
func Checkin(a *RcsArchive, content []byte, rev RevId, date, author, state string, budget diffanalyze.Budget) error {
	if state == "" {
		state = "Exp"
	}
	if !rev.Trunk() {
		return fmt.Errorf("rcs: %s is not a trunk revision", rev.String())
	}
	prev, curr, next := locate(a, rev)
	if curr != nil {
		return errEditOutOfOrder(fmt.Sprintf("revision %s already exists", rev))
	}

	var nextDelta []byte
	if next != nil {
		nextContent, err := Checkout(a, next.Name)
		if err != nil {
			return err
		}
		nextDelta, err = rcsDiff(content, nextContent, budget)
		if err != nil {
			return err
		}
	}

	newRev := &RcsRev{Name: rev, Date: date, Author: author, State: state}
	if prev == nil {
		newRev.Text = RcsChunk{Bytes: append([]byte(nil), content...)}
	} else {
		prevContent, err := Checkout(a, prev.Name)
		if err != nil {
			return err
		}
		delta, err := rcsDiff(prevContent, content, budget)
		if err != nil {
			return err
		}
		newRev.Text = RcsChunk{Bytes: delta}
	}

	if next != nil {
		next.Text = RcsChunk{Bytes: nextDelta}
		newRev.Next = next.Name
	}
	if prev != nil {
		prev.Next = rev
	} else {
		a.Head = rev
	}

	a.Revs = append(a.Revs, newRev)
	return nil
}
