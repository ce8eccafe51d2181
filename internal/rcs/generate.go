package rcs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// writeAtBlock emits b as a legacy "@..@" block, doubling every literal '@'
// (spec.md §4.7.1, the inverse of scanner.atBlock).
func writeAtBlock(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('@')
	for _, c := range b {
		if c == '@' {
			buf.WriteByte('@')
		}
		buf.WriteByte(c)
	}
	buf.WriteByte('@')
}

// writeChunk emits b either as a fast-format "%N\n" length-prefixed block
// or as a legacy "@..@" block, per fastFormat.
func writeChunk(buf *bytes.Buffer, b []byte, fastFormat bool) {
	if fastFormat {
		fmt.Fprintf(buf, "%%%d\n", len(b))
		buf.Write(b)
		return
	}
	writeAtBlock(buf, b)
}

// Generate renders a, reproducing the documented ",v" grammar (spec.md
// §4.7.1). Re-parsing Generate's own output must reproduce an archive
// equal in every observable respect to a (spec.md §8.1 invariant 10).
func Generate(a *RcsArchive, fastFormat bool) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "head %s;\n", a.Head)
	if !a.BranchRoot.Empty() {
		fmt.Fprintf(&buf, "branch %s;\n", a.BranchRoot)
	}

	buf.WriteString("access")
	for _, acc := range a.Access {
		fmt.Fprintf(&buf, " %s", acc)
	}
	buf.WriteString(";\n")

	buf.WriteString("symbols")
	for _, sym := range a.Symbols {
		fmt.Fprintf(&buf, "\n\t%s:%s", sym.Name, sym.Rev)
	}
	buf.WriteString(";\n")

	buf.WriteString("locks")
	for _, l := range a.Locks {
		fmt.Fprintf(&buf, " %s:%s", l.User, l.Rev)
	}
	buf.WriteString(";")
	if a.Strict {
		buf.WriteString(" strict;")
	}
	buf.WriteString("\n")

	buf.WriteString("comment\t")
	writeChunk(&buf, []byte(a.Comment), fastFormat)
	buf.WriteString(";\n")

	if a.ExpandMode != "" {
		buf.WriteString("expand\t")
		writeChunk(&buf, []byte(a.ExpandMode), fastFormat)
		buf.WriteString(";\n")
	}

	for _, r := range a.Revs {
		if r.Deleted {
			continue
		}
		fmt.Fprintf(&buf, "\n\n%s\n", r.Name)
		fmt.Fprintf(&buf, "date\t%s;\tauthor %s;\tstate %s;\n", r.Date, r.Author, r.State)
		buf.WriteString("branches")
		for _, b := range r.Branches {
			fmt.Fprintf(&buf, "\n\t%s", b)
		}
		buf.WriteString(";\n")
		if r.Next.Empty() {
			buf.WriteString("next\t;\n")
		} else {
			fmt.Fprintf(&buf, "next\t%s;\n", r.Next)
		}
	}

	buf.WriteString("\n\ndesc\n")
	writeChunk(&buf, []byte(a.Desc), fastFormat)
	buf.WriteString("\n")

	for _, r := range a.Revs {
		if r.Deleted {
			continue
		}
		fmt.Fprintf(&buf, "\n\n%s\n", r.Name)
		buf.WriteString("log\n")
		writeChunk(&buf, r.Log.Bytes, fastFormat)
		buf.WriteString("\ntext\n")
		writeChunk(&buf, r.Text.Bytes, fastFormat)
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// WriteArchive renders a and replaces path atomically: the new contents are
// written to a sibling temp file and renamed over path, so a reader never
// observes a partially-written archive (spec.md §4.7.4, grounded on the
// teacher's atomic-rename journal rotation in journal.go).
func WriteArchive(path string, a *RcsArchive, fastFormat bool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rcsmerge-*.tmp")
	if err != nil {
		return fmt.Errorf("rcs: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(Generate(a, fastFormat)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rcs: write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rcs: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rcs: rename temp over %s: %w", path, err)
	}
	return nil
}
