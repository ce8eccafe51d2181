// Package diffanalyze implements C3 of the rcsmerge design: the longest
// common subsequence of two seq.Sequences via Myers's "An O(ND) Difference
// Algorithm and Its Variations", under a bounded search budget, emitting a
// forward-biased canonical snake list (spec.md §4.3).
package diffanalyze

import (
	"github.com/vcsforge/rcsmerge/internal/seq"
)

// Snake is a maximal matching run between two Sequences: [X,U) in A matches
// [Y,V) in B, so U-X == V-Y. Snakes form a singly linked list covering both
// sequences from (0,0) to (|A|,|B|), bracketed by zero-length sentinels.
type Snake struct {
	X, U int
	Y, V int
	Next *Snake
}

// Len returns the matched-run length (U-X, equivalently V-Y).
func (s *Snake) Len() int { return s.U - s.X }

// Budget carries the maxD search-budget tunables (spec.md §4.3).
type Budget struct {
	Threshold int // sThresh
	Limit1    int // sLimit1: used when avg >= Threshold
	Limit2    int // sLimit2: used when avg < Threshold
	MinFloor  int // hard floor on maxD (spec.md §9, Open Question a)
}

// maxD computes the bounded search depth for sequences of the given sizes,
// per spec.md §4.3: avg = (|A|+|B|)/2; maxD = max(floor, min(avg, limit/avg)).
func (b Budget) maxD(lenA, lenB int) int {
	avg := (lenA + lenB) / 2
	limit := b.Limit1
	if avg < b.Threshold {
		limit = b.Limit2
	}
	denom := avg
	if denom < 1 {
		denom = 1
	}
	bounded := limit / denom
	m := avg
	if bounded < m {
		m = bounded
	}
	if m < b.MinFloor {
		m = b.MinFloor
	}
	return m
}

// DiffAnalyze holds the computed snake list between two sequences.
type DiffAnalyze struct {
	A, B *seq.Sequence
	head *Snake // always a zero-length sentinel at (0,0)
}

// New computes the LCS of a and b and returns the resulting DiffAnalyze.
// Equal outputs are deterministic: two calls with identical inputs produce
// identical snake sequences (spec.md §8.1 invariant 1).
func New(a, b *seq.Sequence, budget Budget) *DiffAnalyze {
	n, m := a.Count(), b.Count()
	d := budget.maxD(n, m)

	head := computeSnakes(a, b, n, m, d)
	head = verify(a, b, head)
	head = bracket(head, n, m)
	head = applyForwardBias(a, b, head)
	return &DiffAnalyze{A: a, B: b, head: head}
}

// Snakes returns the head of the bracketed, forward-biased snake list.
func (d *DiffAnalyze) Snakes() *Snake { return d.head }

// computeSnakes runs the Myers trace algorithm bounded at maxD and
// reconstructs the matching-run ("snake") list by backtracking. If the
// search budget is exhausted before the edit graph corners are reached,
// FindSnake's documented fallback applies: the best common prefix/suffix is
// kept and the remainder is treated as a single non-matching span, keeping
// recursion/search cost bounded rather than perfect.
func computeSnakes(a, b *seq.Sequence, n, m, maxD int) *Snake {
	eq := func(i, j int) bool { return a.ProbablyEqual(i, b, j) }

	// Early-exit heuristics (spec.md §4.3 FindSnake): pure prefix or pure
	// suffix match needs no search at all.
	if prefixLen := commonPrefix(eq, n, m); prefixLen == n || prefixLen == m {
		return prefixSuffixSnakes(prefixLen, n, m)
	}
	if suffixLen := commonSuffix(eq, n, m, 0); suffixLen == n || suffixLen == m {
		return &Snake{X: n - suffixLen, U: n, Y: m - suffixLen, V: m}
	}

	trace, d, found := shortestEditTrace(eq, n, m, maxD)
	if !found {
		// Budget exhausted: fall back to common-prefix + common-suffix,
		// treating the middle as one opaque non-matching span. This is the
		// "best-effort split so recursion remains shallow" behavior.
		return budgetExhaustedSnakes(eq, n, m)
	}
	return backtrackSnakes(trace, d, n, m)
}

func commonPrefix(eq func(i, j int) bool, n, m int) int {
	i := 0
	for i < n && i < m && eq(i, i) {
		i++
	}
	return i
}

func commonSuffix(eq func(i, j int) bool, n, m, prefix int) int {
	i := 0
	for i < n-prefix && i < m-prefix && eq(n-1-i, m-1-i) {
		i++
	}
	return i
}

func prefixSuffixSnakes(prefixLen, n, m int) *Snake {
	if prefixLen == 0 {
		return nil
	}
	return &Snake{X: 0, U: prefixLen, Y: 0, V: prefixLen}
}

func budgetExhaustedSnakes(eq func(i, j int) bool, n, m int) *Snake {
	prefix := commonPrefix(eq, n, m)
	suffix := commonSuffix(eq, n, m, prefix)
	var head, tail *Snake
	if prefix > 0 {
		head = &Snake{X: 0, U: prefix, Y: 0, V: prefix}
		tail = head
	}
	if suffix > 0 {
		s := &Snake{X: n - suffix, U: n, Y: m - suffix, V: m}
		if tail != nil {
			tail.Next = s
		} else {
			head = s
		}
	}
	return head
}

// shortestEditTrace runs the classic forward O(ND) trace, recording a
// snapshot of the V array before each depth d is explored so the path can be
// recovered by backtracking. Depth is capped at maxD (the bounded-search
// budget); found is false if the corners were not reached within budget.
func shortestEditTrace(eq func(i, j int) bool, n, m, maxD int) (trace [][]int, d int, found bool) {
	max := n + m
	if max == 0 {
		return nil, 0, true
	}
	offset := max
	v := make([]int, 2*max+1)
	for d = 0; d <= maxD && d <= max; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && eq(x, y) {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				return trace, d, true
			}
		}
	}
	return trace, d, false
}

// backtrackSnakes walks the recorded trace from (n,m) back to (0,0),
// emitting matching runs in forward order.
func backtrackSnakes(trace [][]int, d, n, m int) *Snake {
	max := n + m
	offset := max
	type seg struct{ x, y, u, v int }
	var segs []seg

	x, y := n, m
	for depth := len(trace) - 1; depth >= 0; depth-- {
		v := trace[depth]
		k := x - y
		var prevK int
		if k == -depth || (k != depth && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			segs = append(segs, seg{x - 1, y - 1, x, y})
			x--
			y--
		}
		if depth > 0 {
			segs = append(segs, seg{prevX, prevY, x, y})
		}
		x, y = prevX, prevY
	}

	// segs is in reverse order and may contain zero-length (pure edit)
	// entries interleaved with unit diagonal steps; reverse and coalesce
	// adjacent diagonal unit-steps into runs.
	var head, tail *Snake
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if s.u == s.x || s.v == s.y {
			// Non-matching edit segment (pure insert/delete/edit): not a
			// snake; skip, it is represented implicitly by the gap between
			// surrounding snakes.
			continue
		}
		if tail != nil && tail.U == s.x && tail.V == s.y {
			tail.U = s.u
			tail.V = s.v
			continue
		}
		n := &Snake{X: s.x, U: s.u, Y: s.y, V: s.v}
		if tail != nil {
			tail.Next = n
		} else {
			head = n
		}
		tail = n
	}
	return head
}

// verify walks each returned snake and calls Equal (the exact check) on
// every paired element, splitting a snake into sub-snakes wherever
// ProbablyEqual's hash comparison turns out to be a false positive (spec.md
// §4.3 LCS verification pass).
func verify(a, b *seq.Sequence, head *Snake) *Snake {
	var newHead, tail *Snake
	appendSnake := func(s *Snake) {
		if tail != nil {
			tail.Next = s
		} else {
			newHead = s
		}
		tail = s
	}
	for s := head; s != nil; s = s.Next {
		runStart := -1
		for i := 0; i < s.Len(); i++ {
			ok := a.Equal(s.X+i, b, s.Y+i)
			if ok {
				if runStart < 0 {
					runStart = i
				}
			} else if runStart >= 0 {
				appendSnake(&Snake{X: s.X + runStart, U: s.X + i, Y: s.Y + runStart, V: s.Y + i})
				runStart = -1
			}
		}
		if runStart >= 0 {
			appendSnake(&Snake{X: s.X + runStart, U: s.U, Y: s.Y + runStart, V: s.V})
		}
	}
	return newHead
}

// bracket ensures a zero-length sentinel snake exists at (0,0) and at
// (n,m), simplifying all consumers (spec.md §4.3 BracketSnake).
func bracket(head *Snake, n, m int) *Snake {
	front := &Snake{X: 0, U: 0, Y: 0, V: 0, Next: head}
	tail := front
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Next = &Snake{X: n, U: n, Y: m, V: m}
	return front
}

// applyForwardBias implements spec.md §4.3's canonicalization: when an
// adjacent run of identical elements makes the LCS ambiguous (e.g. deleting
// either of two identical adjacent lines is equally optimal), always prefer
// the "forward" choice by sliding a pure insertion/deletion gap through the
// run of duplicates toward the later occurrence.
func applyForwardBias(a, b *seq.Sequence, head *Snake) *Snake {
	for s := head; s != nil && s.Next != nil; {
		n := s.Next
		gapA := n.X - s.U
		gapB := n.Y - s.V
		switch {
		case gapA > 0 && gapB == 0:
			for s.U < n.X && n.X < n.U && a.Equal(s.U, a, n.X) {
				s.U++
				s.V++
				n.X++
				n.Y++
			}
		case gapB > 0 && gapA == 0:
			for s.V < n.Y && n.Y < n.V && b.Equal(s.V, b, n.Y) {
				s.U++
				s.V++
				n.X++
				n.Y++
			}
		}
		if n.X == n.U && n.Y == n.V && n.Next != nil {
			s.Next = n.Next
			continue
		}
		s = n
	}
	return head
}
