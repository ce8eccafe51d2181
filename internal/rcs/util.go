package rcs

import (
	"os"

	"github.com/vcsforge/rcsmerge/internal/readfile"
	"github.com/vcsforge/rcsmerge/internal/seq"
)

// seqFromBytes materializes an in-memory buffer as a temp-file-backed
// Sequence so diffanalyze, which operates on file-backed Sequences, can diff
// reconstructed revision contents that only ever exist in memory. The
// returned cleanup func removes the temp file; callers must defer it.
func seqFromBytes(buf []byte) (*seq.Sequence, func(), error) {
	f, err := os.CreateTemp("", "rcs-*.tmp")
	if err != nil {
		return nil, nil, err
	}
	path := f.Name()
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return nil, nil, err
	}
	f.Close()

	rf, err := readfile.Open(path, 1<<20, 4096)
	if err != nil {
		os.Remove(path)
		return nil, nil, err
	}
	s, err := seq.New(rf, seq.Flags{Mode: seq.Line})
	if err != nil {
		os.Remove(path)
		return nil, nil, err
	}
	return s, func() { os.Remove(path) }, nil
}
