package seq

import (
	"github.com/vcsforge/rcsmerge/internal/readfile"
)

// sequencer is the closed, tagged-variant contract spec.md §9 calls for: a
// load pass that tokenizes a file into a Sequence, and an equal predicate
// that performs the exact-equality check ProbablyEqual cannot guarantee.
type sequencer interface {
	load(s *Sequence, f *readfile.ReadFile) error
	equal(a *Sequence, ai int, b *Sequence, bi int) bool
}

func sequencerFor(m Mode) sequencer {
	switch m {
	case Word:
		return wordSequencer{}
	case WClass:
		return wclassSequencer{}
	case DashL:
		return dashLSequencer{}
	case DashB:
		return dashBSequencer{}
	case DashW:
		return dashWSequencer{}
	default:
		return lineSequencer{}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\v' || b == '\f' || b == '\r'
}

// byteAt reads a single byte at offset from f without leaving f positioned
// anywhere callers would notice, since load/equal always re-seek before use.
func byteAt(f *readfile.ReadFile, offset int64) (byte, bool) {
	f.Seek(offset)
	return f.PeekByte()
}

// bytesEqual compares len bytes starting at offsets oa/ob across (possibly
// different) files using plain ReadAt-style access via Seek+ReadInto.
func bytesEqual(fa *readfile.ReadFile, oa int64, fb *readfile.ReadFile, ob int64, n int64) bool {
	if n == 0 {
		return true
	}
	const chunk = 4096
	buf1 := make([]byte, chunk)
	buf2 := make([]byte, chunk)
	var done int64
	for done < n {
		want := n - done
		if want > chunk {
			want = chunk
		}
		fa.Seek(oa + done)
		fb.Seek(ob + done)
		n1 := fa.ReadInto(buf1[:want])
		n2 := fb.ReadInto(buf2[:want])
		if int64(n1) != want || int64(n2) != want {
			return false
		}
		for i := int64(0); i < want; i++ {
			if buf1[i] != buf2[i] {
				return false
			}
		}
		done += want
	}
	return true
}

// --- Line sequencer ---------------------------------------------------

type lineSequencer struct{}

func (lineSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	start := int64(0)
	for {
		c, ok := f.PeekByte()
		if !ok {
			if f.Tell() > start {
				s.store(f.Tell(), h)
			}
			break
		}
		f.Advance()
		h = rollHash(h, c)
		if c == '\n' {
			s.store(f.Tell(), h)
			h = 0
			start = f.Tell()
		}
	}
	return nil
}

func (lineSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	return bytesEqual(a.file, a.Offset(ai), b.file, b.Offset(bi), a.Length(ai))
}

// --- Word sequencer -----------------------------------------------------

type wordSequencer struct{}

func (wordSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	for {
		c, ok := f.PeekByte()
		if !ok {
			if f.Tell() > 0 && (len(s.offsets) == 1 || s.offsets[len(s.offsets)-1] != f.Tell()) {
				s.store(f.Tell(), h)
			}
			break
		}
		f.Advance()
		h = rollHash(h, c)
		if isSpace(c) || c == '\n' {
			s.store(f.Tell(), h)
			h = 0
		}
	}
	return nil
}

func (wordSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	return bytesEqual(a.file, a.Offset(ai), b.file, b.Offset(bi), a.Length(ai))
}

// --- Character-class sequencer (word-level diffs) ------------------------

type charClass int

const (
	classCR charClass = iota
	classLF
	classAlnum
	classSpace
	classOther
)

func classify(b byte) charClass {
	switch {
	case b == '\r':
		return classCR
	case b == '\n':
		return classLF
	case b == ' ' || b == '\t' || b == '\v' || b == '\f':
		return classSpace
	case (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b >= 0x80:
		return classAlnum
	default:
		return classOther
	}
}

type wclassSequencer struct{}

func (wclassSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	cur := classOther
	first := true
	for {
		c, ok := f.PeekByte()
		if !ok {
			if !first {
				s.store(f.Tell(), h)
			}
			break
		}
		cls := classify(c)
		if !first && cls != cur {
			s.store(f.Tell(), h)
			h = 0
		}
		f.Advance()
		h = rollHash(h, c)
		cur = cls
		first = false
	}
	return nil
}

func (wclassSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	return bytesEqual(a.file, a.Offset(ai), b.file, b.Offset(bi), a.Length(ai))
}

// --- DashL: ignore line endings ------------------------------------------

type dashLSequencer struct{}

func (dashLSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	for {
		c, ok := f.PeekByte()
		if !ok {
			if f.Tell() > 0 && (len(s.offsets) == 1 || s.offsets[len(s.offsets)-1] != f.Tell()) {
				s.store(f.Tell(), h)
			}
			break
		}
		f.Advance()
		isEnd := c == '\r' || c == '\n'
		if isEnd {
			h = rollHash(h, '\n')
			if c == '\r' {
				if nb, ok2 := f.PeekByte(); ok2 && nb == '\n' {
					f.Advance()
				}
			}
			s.store(f.Tell(), h)
			h = 0
		} else {
			h = rollHash(h, c)
		}
	}
	return nil
}

func (dashLSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	la, lb := a.Length(ai), b.Length(bi)
	n := la
	if lb < n {
		n = lb
	}
	if !bytesEqual(a.file, a.Offset(ai), b.file, b.Offset(bi), n) {
		return false
	}
	if la == lb {
		return true
	}
	// Tolerate a 1-byte difference only if the extra byte(s) are line
	// enders (spec.md §4.2 DashL).
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		return false
	}
	longer, longerOff := a, a.Offset(ai)+n
	if lb > la {
		longer, longerOff = b, b.Offset(bi)+n
	}
	for o := longerOff; o < longerOff+diff; o++ {
		c, ok := byteAt(longer.file, o)
		if !ok || (c != '\r' && c != '\n') {
			return false
		}
	}
	return true
}

// --- DashB: ignore whitespace amount --------------------------------------

type dashBSequencer struct{}

func (dashBSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	inSpace := false
	for {
		c, ok := f.PeekByte()
		if !ok {
			if f.Tell() > 0 && (len(s.offsets) == 1 || s.offsets[len(s.offsets)-1] != f.Tell()) {
				s.store(f.Tell(), h)
			}
			break
		}
		f.Advance()
		if c == '\n' {
			h = rollHash(h, '\n')
			s.store(f.Tell(), h)
			h = 0
			inSpace = false
			continue
		}
		if isSpace(c) {
			inSpace = true
			continue
		}
		// A whitespace run is hashed as one space only once a non-space
		// byte follows it, so trailing whitespace does not count.
		if inSpace {
			h = rollHash(h, ' ')
			inSpace = false
		}
		h = rollHash(h, c)
	}
	return nil
}

func (dashBSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	return normalizedEqual(a, ai, b, bi, false)
}

// --- DashW: ignore all whitespace -----------------------------------------

type dashWSequencer struct{}

func (dashWSequencer) load(s *Sequence, f *readfile.ReadFile) error {
	f.Seek(0)
	var h uint32
	for {
		c, ok := f.PeekByte()
		if !ok {
			if f.Tell() > 0 && (len(s.offsets) == 1 || s.offsets[len(s.offsets)-1] != f.Tell()) {
				s.store(f.Tell(), h)
			}
			break
		}
		f.Advance()
		if c == '\n' {
			s.store(f.Tell(), h)
			h = 0
			continue
		}
		if isSpace(c) {
			continue
		}
		h = rollHash(h, c)
	}
	return nil
}

func (dashWSequencer) equal(a *Sequence, ai int, b *Sequence, bi int) bool {
	return normalizedEqual(a, ai, b, bi, true)
}

// normalizedEqual reads both elements byte-by-byte, skipping whitespace
// (dashW) or collapsing internal whitespace runs to a single space (dashB,
// trailing whitespace ignored), and compares the normalized streams.
func normalizedEqual(a *Sequence, ai int, b *Sequence, bi int, ignoreAll bool) bool {
	an := normalize(a, ai, ignoreAll)
	bn := normalize(b, bi, ignoreAll)
	return string(an) == string(bn)
}

func normalize(s *Sequence, i int, ignoreAll bool) []byte {
	start, end := s.Offset(i), s.Offset(i+1)
	out := make([]byte, 0, end-start)
	inSpace := false
	for o := start; o < end; o++ {
		c, ok := byteAt(s.file, o)
		if !ok {
			break
		}
		if c == '\n' {
			continue
		}
		if isSpace(c) {
			if ignoreAll {
				continue
			}
			inSpace = true
			continue
		}
		if inSpace {
			out = append(out, ' ')
			inSpace = false
		}
		out = append(out, c)
	}
	return out
}
