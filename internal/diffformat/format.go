// Package diffformat implements C4 of the rcsmerge design: rendering a snake
// list as normal, context, unified, summary, HTML, or RCS-delta output
// (spec.md §4.4).
package diffformat

import (
	"fmt"
	"io"

	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/seq"
)

// hunk is a single contiguous change: lines [aLo,aHi) of A replaced by lines
// [bLo,bHi) of B (either span may be empty).
type hunk struct {
	aLo, aHi int
	bLo, bHi int
}

// hunks walks the bracketed snake list and returns the non-matching spans
// between consecutive snakes.
func hunks(head *diffanalyze.Snake) []hunk {
	var out []hunk
	for s := head; s != nil && s.Next != nil; s = s.Next {
		n := s.Next
		if s.U < n.X || s.V < n.Y {
			out = append(out, hunk{s.U, n.X, s.V, n.Y})
		}
	}
	return out
}

// coalesce merges hunks whose surrounding matched run is shorter than
// 2*context lines into a single hunk (spec.md §4.4).
func coalesce(hs []hunk, context int) []hunk {
	if len(hs) == 0 || context < 0 {
		return hs
	}
	out := []hunk{hs[0]}
	for _, h := range hs[1:] {
		last := &out[len(out)-1]
		gapA := h.aLo - last.aHi
		gapB := h.bLo - last.bHi
		gap := gapA
		if gapB > gap {
			gap = gapB
		}
		if gap < 2*context {
			last.aHi = h.aHi
			last.bHi = h.bHi
			continue
		}
		out = append(out, h)
	}
	return out
}

func elementBytes(s *seq.Sequence, i int) []byte {
	start, end := s.Offset(i), s.Offset(i+1)
	buf := make([]byte, end-start)
	f := s.File()
	f.Seek(start)
	f.ReadInto(buf)
	return buf
}

func writeRawLines(w io.Writer, s *seq.Sequence, lo, hi int) {
	for i := lo; i < hi; i++ {
		w.Write(elementBytes(s, i))
	}
}

func writeLines(w io.Writer, s *seq.Sequence, lo, hi int, prefix string) {
	for i := lo; i < hi; i++ {
		fmt.Fprint(w, prefix)
		b := elementBytes(s, i)
		w.Write(b)
		if len(b) == 0 || b[len(b)-1] != '\n' {
			fmt.Fprint(w, "\n\\ No newline at end of file\n")
		}
	}
}

// Normal renders classical d/a/c hunks with "< "/"> "/"---" separators.
func Normal(w io.Writer, a, b *seq.Sequence, head *diffanalyze.Snake) {
	for _, h := range hunks(head) {
		switch {
		case h.aLo == h.aHi:
			fmt.Fprintf(w, "%da%s\n", h.aLo, rangeStr(h.bLo+1, h.bHi))
		case h.bLo == h.bHi:
			fmt.Fprintf(w, "%sd%d\n", rangeStr(h.aLo+1, h.aHi), h.bLo)
		default:
			fmt.Fprintf(w, "%sc%s\n", rangeStr(h.aLo+1, h.aHi), rangeStr(h.bLo+1, h.bHi))
		}
		if h.aLo != h.aHi {
			writeLines(w, a, h.aLo, h.aHi, "< ")
		}
		if h.aLo != h.aHi && h.bLo != h.bHi {
			fmt.Fprintln(w, "---")
		}
		if h.bLo != h.bHi {
			writeLines(w, b, h.bLo, h.bHi, "> ")
		}
	}
}

func rangeStr(lo, hi int) string {
	if lo >= hi {
		return fmt.Sprintf("%d", lo)
	}
	return fmt.Sprintf("%d,%d", lo, hi)
}

// Unified renders "@@ -l1,c1 +l2,c2 @@" headers with space/-/+ prefixed
// lines (spec.md §4.4, scenario S5).
func Unified(w io.Writer, a, b *seq.Sequence, head *diffanalyze.Snake, context int) {
	hs := coalesce(hunks(head), context)
	for _, h := range hs {
		aCtxLo := h.aLo - context
		if aCtxLo < 0 {
			aCtxLo = 0
		}
		aCtxHi := h.aHi + context
		if aCtxHi > a.Count() {
			aCtxHi = a.Count()
		}
		bCtxLo := h.bLo - context
		if bCtxLo < 0 {
			bCtxLo = 0
		}
		bCtxHi := h.bHi + context
		if bCtxHi > b.Count() {
			bCtxHi = b.Count()
		}
		fmt.Fprintf(w, "@@ -%s +%s @@\n",
			unifiedRange(aCtxLo, aCtxHi), unifiedRange(bCtxLo, bCtxHi))
		writeLines(w, a, aCtxLo, h.aLo, " ")
		writeLines(w, a, h.aLo, h.aHi, "-")
		writeLines(w, b, h.bLo, h.bHi, "+")
		writeLines(w, b, h.bHi, bCtxHi, " ")
	}
}

func unifiedRange(lo, hi int) string {
	count := hi - lo
	start := lo + 1
	if count == 0 {
		start = lo
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Context renders "*** file1 ***"/"--- file2 ---" blocks with configurable
// context lines; lines differing on both sides are marked "! ".
func Context(w io.Writer, a, b *seq.Sequence, head *diffanalyze.Snake, context int) {
	hs := coalesce(hunks(head), context)
	for _, h := range hs {
		aCtxLo, aCtxHi := clampCtx(h.aLo, h.aHi, context, a.Count())
		bCtxLo, bCtxHi := clampCtx(h.bLo, h.bHi, context, b.Count())
		fmt.Fprintf(w, "*** %s ***\n", rangeStr(aCtxLo+1, aCtxHi))
		writeLines(w, a, aCtxLo, h.aLo, "  ")
		prefix := "- "
		if h.aLo != h.aHi && h.bLo != h.bHi {
			prefix = "! "
		}
		writeLines(w, a, h.aLo, h.aHi, prefix)
		writeLines(w, a, h.aHi, aCtxHi, "  ")

		fmt.Fprintf(w, "--- %s ---\n", rangeStr(bCtxLo+1, bCtxHi))
		writeLines(w, b, bCtxLo, h.bLo, "  ")
		prefix = "+ "
		if h.aLo != h.aHi && h.bLo != h.bHi {
			prefix = "! "
		}
		writeLines(w, b, h.bLo, h.bHi, prefix)
		writeLines(w, b, h.bHi, bCtxHi, "  ")
	}
}

func clampCtx(lo, hi, context, count int) (int, int) {
	l := lo - context
	if l < 0 {
		l = 0
	}
	h := hi + context
	if h > count {
		h = count
	}
	return l, h
}

// Summary reports totals of added/deleted/edited chunks and lines.
type Summary struct {
	Chunks  int
	Added   int
	Deleted int
	Edited  int
}

// Totals computes the summary output (spec.md §4.4 Summary).
func Totals(head *diffanalyze.Snake) Summary {
	var s Summary
	for _, h := range hunks(head) {
		s.Chunks++
		switch {
		case h.aLo == h.aHi:
			s.Added += h.bHi - h.bLo
		case h.bLo == h.bHi:
			s.Deleted += h.aHi - h.aLo
		default:
			s.Edited += (h.aHi - h.aLo) + (h.bHi - h.bLo)
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d chunks, %d added, %d deleted, %d edited", s.Chunks, s.Added, s.Deleted, s.Edited)
}

// HTML renders common text plain, A-only spans in red, B-only spans in blue.
func HTML(w io.Writer, a, b *seq.Sequence, head *diffanalyze.Snake) {
	fmt.Fprint(w, "<pre>")
	for s := head; s != nil; s = s.Next {
		writeHTMLLines(w, a, s.X, s.U, "")
		if s.Next == nil {
			break
		}
		n := s.Next
		if s.U < n.X {
			writeHTMLLines(w, a, s.U, n.X, `<span style="color:red">`)
		}
		if s.V < n.Y {
			writeHTMLLines(w, b, s.V, n.Y, `<span style="color:blue">`)
		}
	}
	fmt.Fprint(w, "</pre>")
}

func writeHTMLLines(w io.Writer, s *seq.Sequence, lo, hi int, openTag string) {
	if lo >= hi {
		return
	}
	if openTag != "" {
		fmt.Fprint(w, openTag)
	}
	for i := lo; i < hi; i++ {
		fmt.Fprint(w, htmlEscape(string(elementBytes(s, i))))
	}
	if openTag != "" {
		fmt.Fprint(w, "</span>")
	}
}

func htmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			out = append(out, []byte("&lt;")...)
		case '>':
			out = append(out, []byte("&gt;")...)
		case '&':
			out = append(out, []byte("&amp;")...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// RCS renders the reverse-delta grammar required by checkin (spec.md §4.7.4,
// §6.2): "aN M" / "dN M" headers, where line numbers reference the state
// produced by applying prior edits in the same delta sequentially.
func RCS(w io.Writer, a, b *seq.Sequence, head *diffanalyze.Snake) {
	shift := 0
	for _, h := range hunks(head) {
		switch {
		case h.bLo == h.bHi: // pure deletion from A
			n := h.aLo + 1 - shift
			m := h.aHi - h.aLo
			fmt.Fprintf(w, "d%d %d\n", n, m)
			shift += m
		case h.aLo == h.aHi: // pure insertion of B lines after line aLo
			n := h.aLo - shift
			m := h.bHi - h.bLo
			fmt.Fprintf(w, "a%d %d\n", n, m)
			writeRawLines(w, b, h.bLo, h.bHi)
			shift -= m
		default: // edit: delete then insert
			dn := h.aLo + 1 - shift
			dm := h.aHi - h.aLo
			fmt.Fprintf(w, "d%d %d\n", dn, dm)
			an := h.aLo - shift
			shift += dm
			am := h.bHi - h.bLo
			fmt.Fprintf(w, "a%d %d\n", an, am)
			writeRawLines(w, b, h.bLo, h.bHi)
			shift -= am
		}
	}
}
