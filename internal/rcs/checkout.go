package rcs

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// maxInsertLines bounds a single "aN M" insert count (rcs.maxinsert,
// spec.md §4.7.3), guarding against a corrupt or hostile delta claiming an
// absurd insert length.
const maxInsertLines = 1 << 24

// splitLines splits content into lines, each element retaining its trailing
// '\n' (the final element may lack one).
func splitLines(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	var out [][]byte
	start := 0
	for i := 0; i < len(b); i++ {
		if b[i] == '\n' {
			out = append(out, b[start:i+1])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

func joinLines(lines [][]byte) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
	}
	return buf.Bytes()
}

// applyEdit replays an RCS edit script (spec.md §6.2: a sequence of "dN M"
// and "aN M" headers, each insert header followed by its M raw lines)
// against lines, producing the revision one step older (or newer, for a
// forward script) than lines. Positions in the script already refer to the
// buffer as it stands at the point each op is applied — that is the
// invariant diffformat.RCS's shift bookkeeping establishes when the script
// was generated, so no further offset adjustment happens here.
func applyEdit(lines [][]byte, script []byte) ([][]byte, error) {
	out := append([][]byte(nil), lines...)
	s := &scanner{buf: script, line: 1}
	for {
		s.skipWS()
		if s.pos >= len(s.buf) {
			break
		}
		op := s.buf[s.pos]
		if op != 'a' && op != 'd' {
			return nil, errMangled(s.snippet())
		}
		s.pos++
		nStr, err := s.word()
		if err != nil {
			return nil, err
		}
		mStr, err := s.word()
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(nStr)
		if err != nil {
			return nil, errMangled(nStr)
		}
		m, err := strconv.Atoi(mStr)
		if err != nil {
			return nil, errMangled(mStr)
		}
		if m < 0 || m > maxInsertLines {
			return nil, errMangled(fmt.Sprintf("%c%d %d", op, n, m))
		}
		for s.pos < len(s.buf) && s.buf[s.pos] != '\n' {
			s.pos++
		}
		if s.pos < len(s.buf) {
			s.pos++
			s.line++
		}

		switch op {
		case 'd':
			idx := n - 1
			if idx < 0 || m < 0 || idx+m > len(out) {
				return nil, errDeleteUnderflow(fmt.Sprintf("d%d %d against %d lines", n, m, len(out)))
			}
			out = append(out[:idx], out[idx+m:]...)
		case 'a':
			if n < 0 || n > len(out) {
				return nil, errEditOutOfOrder(fmt.Sprintf("a%d %d out of range (%d lines)", n, m, len(out)))
			}
			ins := make([][]byte, 0, m)
			for i := 0; i < m; i++ {
				start := s.pos
				for s.pos < len(s.buf) && s.buf[s.pos] != '\n' {
					s.pos++
				}
				if s.pos < len(s.buf) {
					s.pos++
					s.line++
				}
				if start == s.pos {
					return nil, errMangled("truncated insert text")
				}
				ins = append(ins, append([]byte(nil), script[start:s.pos]...))
			}
			merged := make([][]byte, 0, len(out)+m)
			merged = append(merged, out[:n]...)
			merged = append(merged, ins...)
			merged = append(merged, out[n:]...)
			out = merged
		}
	}
	return out, nil
}

// pathToTarget walks from the archive head to target, returning the
// sequence of revisions whose deltas must be applied in order (head first).
// Mirrors RcsArchive.FollowRevision's step classification but retains every
// intermediate revision instead of only the final one (spec.md §4.7.3).
func pathToTarget(a *RcsArchive, target RevId) ([]*RcsRev, error) {
	cur, err := a.FindRevision(a.Head)
	if err != nil {
		return nil, err
	}
	path := []*RcsRev{cur}
	seen := map[string]bool{cur.Name.String(): true}
	for RevCmp(target, cur.Name) != Equal {
		switch RevCmp(target, cur.Name) {
		case DownTrunk, OutBranch:
			if cur.Next.Empty() {
				return nil, errNoRev(target.String())
			}
			nxt, err := a.FindRevision(cur.Next)
			if err != nil {
				return nil, err
			}
			if seen[nxt.Name.String()] {
				return nil, errLoop(nxt.Name.String())
			}
			seen[nxt.Name.String()] = true
			cur = nxt
			path = append(path, cur)
		case AtBranch, NumBranch:
			found := false
			for _, b := range cur.Branches {
				if RevCmp(target, b) == Equal || RevCmp(target, b) == OutBranch {
					br, err := a.FindRevision(b)
					if err != nil {
						return nil, err
					}
					cur = br
					path = append(path, cur)
					found = true
					break
				}
			}
			if !found {
				return nil, errNoBranch(target.String())
			}
		default:
			return nil, errLoop(cur.Name.String())
		}
	}
	return path, nil
}

// Checkout reconstructs target's full text by applying, in order, every
// delta on the path from the archive's head down to target (spec.md
// §4.7.3). The head revision alone stores full content; every other
// revision on the path stores a delta relative to its newer neighbor.
func Checkout(a *RcsArchive, target RevId) ([]byte, error) {
	path, err := pathToTarget(a, target)
	if err != nil {
		return nil, err
	}
	if path[len(path)-1].Deleted {
		return nil, errNoRev(target.String())
	}
	lines := splitLines(path[0].Text.Bytes)
	for _, rev := range path[1:] {
		lines, err = applyEdit(lines, rev.Text.Bytes)
		if err != nil {
			return nil, err
		}
	}
	return joinLines(lines), nil
}

// CheckoutReader is a resumable byte reader over an already-reconstructed
// revision (spec.md §4.7.3's "read(buf,len) -> bytes_read" contract).
type CheckoutReader struct {
	data []byte
	pos  int
}

// NewCheckoutReader wraps content for incremental reads.
func NewCheckoutReader(content []byte) *CheckoutReader {
	return &CheckoutReader{data: content}
}

// Read copies up to len(buf) bytes starting from the reader's current
// position and advances it, returning io.EOF once exhausted.
func (r *CheckoutReader) Read(buf []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(buf, r.data[r.pos:])
	r.pos += n
	return n, nil
}
