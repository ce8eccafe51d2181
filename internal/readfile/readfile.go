// Package readfile implements C1 of the rcsmerge design: a random-access
// byte window over a file, with an optional memory-mapped backend and
// line-ending translation for materializing checked-out text.
//
// Grounded on biogo-hts/fai/file.go's golang.org/x/exp/mmap.ReaderAt backend
// for the memory-mapped path, and on the teacher's habit (journal.go,
// main.go) of wrapping os file errors with context before returning them.
package readfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// LineType selects the line-ending translation mode applied by TextCopy
// (spec.md §4.1).
type LineType int

const (
	// Raw passes bytes through unmodified.
	Raw LineType = iota
	// Cr translates a lone '\r' to '\n'.
	Cr
	// CrLf collapses "\r\n" to "\n".
	CrLf
	// Lfcrlf behaves like CrLf on read.
	Lfcrlf
)

// ReadFile is a random-access byte window over a file. Non-empty files at or
// below the configured mmap limit are memory-mapped; larger files use a
// sliding read buffer and explicit I/O on miss. Both backends present an
// identical API.
type ReadFile struct {
	path string
	size int64
	pos  int64

	mapped *mmap.ReaderAt // non-nil when memory-mapped

	f       *os.File // non-nil when using the sliding-buffer backend
	buf     []byte
	bufOff  int64 // file offset of buf[0]
	bufLen  int   // valid bytes in buf
	bufSize int
}

// Open opens path for random-access reading. mmapLimit is the largest file
// size eligible for the memory-mapped backend; bufSize configures the
// sliding-buffer backend's window (spec.md §4.1's "default 4 KiB").
func Open(path string, mmapLimit int64, bufSize int) (*ReadFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("readfile: stat %s: %w", path, err)
	}
	size := fi.Size()
	if bufSize <= 0 {
		bufSize = 4096
	}
	rf := &ReadFile{path: path, size: size, bufSize: bufSize}
	if size > 0 && size <= mmapLimit {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("readfile: mmap %s: %w", path, err)
		}
		rf.mapped = m
		return rf, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("readfile: open %s: %w", path, err)
	}
	rf.f = f
	rf.buf = make([]byte, bufSize)
	return rf, nil
}

// Close releases the underlying mapping or descriptor.
func (r *ReadFile) Close() error {
	if r.mapped != nil {
		return r.mapped.Close()
	}
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// Size returns the total file size in bytes.
func (r *ReadFile) Size() int64 { return r.size }

// Tell returns the current read position.
func (r *ReadFile) Tell() int64 { return r.pos }

// Seek moves the current read position.
func (r *ReadFile) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	if pos > r.size {
		pos = r.size
	}
	r.pos = pos
}

// errEOF is returned internally by fillBuffer when no more bytes are available.
var errEOF = errors.New("readfile: eof")

// fillBuffer ensures buf contains byte at r.pos for the sliding-buffer backend.
func (r *ReadFile) fillBuffer() error {
	if r.pos >= r.bufOff && r.pos < r.bufOff+int64(r.bufLen) {
		return nil
	}
	if r.pos >= r.size {
		return errEOF
	}
	n, err := r.f.ReadAt(r.buf, r.pos)
	if n == 0 && err != nil && err != io.EOF {
		return fmt.Errorf("readfile: read %s at %d: %w", r.path, r.pos, err)
	}
	r.bufOff = r.pos
	r.bufLen = n
	if n == 0 {
		return errEOF
	}
	return nil
}

// PeekByte returns the byte at the current position without advancing, and
// whether a byte was available.
func (r *ReadFile) PeekByte() (byte, bool) {
	if r.pos >= r.size {
		return 0, false
	}
	if r.mapped != nil {
		var b [1]byte
		if _, err := r.mapped.ReadAt(b[:], r.pos); err != nil {
			return 0, false
		}
		return b[0], true
	}
	if err := r.fillBuffer(); err != nil {
		return 0, false
	}
	return r.buf[r.pos-r.bufOff], true
}

// Advance moves the position forward by one byte.
func (r *ReadFile) Advance() {
	if r.pos < r.size {
		r.pos++
	}
}

// ReadInto fills buf from the current position, advancing, and returns the
// number of bytes copied.
func (r *ReadFile) ReadInto(buf []byte) int {
	if len(buf) == 0 || r.pos >= r.size {
		return 0
	}
	want := int64(len(buf))
	if want > r.size-r.pos {
		want = r.size - r.pos
	}
	if r.mapped != nil {
		n, _ := r.mapped.ReadAt(buf[:want], r.pos)
		r.pos += int64(n)
		return n
	}
	total := 0
	for int64(total) < want {
		if err := r.fillBuffer(); err != nil {
			break
		}
		avail := r.bufLen - int(r.pos-r.bufOff)
		n := copy(buf[total:want], r.buf[r.pos-r.bufOff:r.pos-r.bufOff+int64(avail)])
		r.pos += int64(n)
		total += n
		if n == 0 {
			break
		}
	}
	return total
}

// CopyUntilByte copies bytes from the current position into buf until b is
// found (inclusive) or buf/EOF is exhausted, and returns the count copied.
func (r *ReadFile) CopyUntilByte(buf []byte, b byte) int {
	n := 0
	for n < len(buf) {
		c, ok := r.PeekByte()
		if !ok {
			break
		}
		buf[n] = c
		n++
		r.Advance()
		if c == b {
			break
		}
	}
	return n
}

// ScanUntilByte advances past bytes until b is found (inclusive) or maxLen
// bytes have been scanned, returning the number of bytes scanned.
func (r *ReadFile) ScanUntilByte(b byte, maxLen int) int {
	n := 0
	for n < maxLen {
		c, ok := r.PeekByte()
		if !ok {
			break
		}
		r.Advance()
		n++
		if c == b {
			break
		}
	}
	return n
}

// Memcmp compares len bytes of r (from its current position) against other
// (from its current position), without advancing either; result is <0, 0, >0
// like memcmp. If the two sides yield different byte counts (one hits EOF
// first), the side with fewer bytes compares lower without a byte compare.
func (r *ReadFile) Memcmp(other *ReadFile, length int) int {
	a := make([]byte, length)
	b := make([]byte, length)
	an := r.peekN(a)
	bn := other.peekN(b)
	if an != bn {
		if an < bn {
			return -1
		}
		return 1
	}
	for i := 0; i < an; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (r *ReadFile) peekN(buf []byte) int {
	save := r.pos
	n := r.ReadInto(buf)
	r.pos = save
	return n
}

// TextCopy copies up to min(len(dst), srcLen) bytes from the current
// position, translating line endings per lineType, and returns the number of
// destination bytes written. The caller determines how many source bytes
// were consumed by bracketing the call with Tell.
func (r *ReadFile) TextCopy(dst []byte, srcLen int, lineType LineType) int {
	w := 0
	read := 0
	for w < len(dst) && read < srcLen {
		c, ok := r.PeekByte()
		if !ok {
			break
		}
		switch lineType {
		case Cr:
			r.Advance()
			read++
			if c == '\r' {
				c = '\n'
			}
			dst[w] = c
			w++
		case CrLf, Lfcrlf:
			r.Advance()
			read++
			if c == '\r' {
				if nb, ok2 := r.PeekByte(); ok2 && nb == '\n' {
					r.Advance()
					read++
					dst[w] = '\n'
					w++
					continue
				}
			}
			dst[w] = c
			w++
		default: // Raw
			r.Advance()
			read++
			dst[w] = c
			w++
		}
	}
	return w
}
