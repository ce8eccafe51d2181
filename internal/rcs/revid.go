// Package rcs implements C7 of the rcsmerge design: parsing, reconstructing
// (checkout), updating (checkin), deleting, and rewriting (generate) RCS
// ",v" archives (spec.md §4.7).
package rcs

import (
	"fmt"
	"strconv"
	"strings"
)

// RevId is a dotted numeric revision identifier (spec.md §3): an even
// number of components on the trunk ("1.3", "2.1"), additional pairs per
// branch level ("1.3.1.4" is the fourth rev of branch "1.3.1").
type RevId struct {
	parts []int
}

// ParseRevId parses the dotted-decimal textual form.
func ParseRevId(s string) (RevId, error) {
	if s == "" {
		return RevId{}, fmt.Errorf("empty revision id")
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return RevId{}, fmt.Errorf("malformed revision id %q: %v", s, err)
		}
		parts[i] = n
	}
	return RevId{parts: parts}, nil
}

// String renders the dotted-decimal form.
func (r RevId) String() string {
	ss := make([]string, len(r.parts))
	for i, p := range r.parts {
		ss[i] = strconv.Itoa(p)
	}
	return strings.Join(ss, ".")
}

// Empty reports whether r carries no components (the zero value).
func (r RevId) Empty() bool { return len(r.parts) == 0 }

// Components returns a copy of the dotted-decimal components.
func (r RevId) Components() []int { return append([]int(nil), r.parts...) }

// NewTrunkRev constructs the trunk revision "major.minor".
func NewTrunkRev(major, minor int) RevId { return RevId{parts: []int{major, minor}} }

// NextMinor returns the next trunk revision after r ("1.3" -> "1.4"); it
// errors if r is not a depth-2 trunk revision, since branch placement is
// left to Checkin's caller (spec.md §4.7.4's Open Question on branch
// checkin).
func (r RevId) NextMinor() (RevId, error) {
	if !r.Trunk() {
		return RevId{}, fmt.Errorf("rcs: %s is not a trunk revision", r.String())
	}
	return RevId{parts: []int{r.parts[0], r.parts[1] + 1}}, nil
}

// Depth returns the number of dotted components.
func (r RevId) Depth() int { return len(r.parts) }

// Trunk reports whether r has an even depth with no branch suffix beyond
// the first pair (i.e. depth == 2).
func (r RevId) Trunk() bool { return len(r.parts) == 2 }

// Parent returns the revision that would precede r if r is the first
// revision of a branch (e.g. "1.3.1.1" -> "1.3"), and ok is false if r is
// already trunk-depth or shallower.
func (r RevId) Parent() (RevId, bool) {
	if len(r.parts) <= 2 {
		return RevId{}, false
	}
	return RevId{parts: append([]int(nil), r.parts[:len(r.parts)-2]...)}, true
}

// CmpKind is the taxonomy RevCmp returns (spec.md §3, §4.7.2).
type CmpKind int

const (
	Equal CmpKind = iota
	Mismatch
	DownTrunk
	UpTrunk
	AtBranch
	NumBranch
	OutBranch
	InBranch
)

func (k CmpKind) String() string {
	switch k {
	case Equal:
		return "Equal"
	case Mismatch:
		return "Mismatch"
	case DownTrunk:
		return "DownTrunk"
	case UpTrunk:
		return "UpTrunk"
	case AtBranch:
		return "AtBranch"
	case NumBranch:
		return "NumBranch"
	case OutBranch:
		return "OutBranch"
	case InBranch:
		return "InBranch"
	default:
		return "Unknown"
	}
}

// magicBranchSkip reports whether parts[i] is a CVS magic-branch zero
// component: a zero at an even index (0-based) beyond the first pair,
// which RevCmp must skip over rather than compare numerically (spec.md
// §4.7.2).
func magicBranchSkip(parts []int, i int) bool {
	return i >= 2 && i%2 == 0 && parts[i] == 0
}

// RevCmp classifies target t against current c by walking their dotted
// components in parallel (spec.md §4.7.2, §3). RevCmp(x, x) == Equal
// always holds (spec.md §8.1 invariant 12).
func RevCmp(t, c RevId) CmpKind {
	tp, cp := t.parts, c.parts
	n := len(tp)
	if len(cp) < n {
		n = len(cp)
	}
	for i := 0; i < n; i++ {
		if magicBranchSkip(tp, i) || magicBranchSkip(cp, i) {
			continue
		}
		if tp[i] == cp[i] {
			continue
		}
		// Components diverge at index i: classify by levels = i+1, the
		// count of components compared up to and including this one.
		levels := i + 1
		switch {
		case levels <= 2:
			if tp[i] > cp[i] {
				return UpTrunk
			}
			return DownTrunk
		case levels%2 == 0:
			if tp[i] > cp[i] {
				return OutBranch
			}
			return InBranch
		default:
			return Mismatch
		}
	}
	switch {
	case len(tp) == len(cp):
		return Equal
	case len(tp) < len(cp):
		// t is a proper prefix of c: not comparable by this taxonomy.
		return Mismatch
	default:
		// c is a proper prefix of t: t descends from c's branch number.
		if len(cp)%2 == 0 {
			return AtBranch
		}
		return NumBranch
	}
}
