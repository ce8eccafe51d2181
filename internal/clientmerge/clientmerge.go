// Package clientmerge implements C8 of the rcsmerge design: the stateful
// orchestrator that drives a C5 DiffMerge (or a binary-only comparison)
// into a terminal resolution, applying conflict markers at selection-bit
// transitions and tracking the digests needed to classify the outcome
// (spec.md §4.8).
package clientmerge

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/diffmerge"
	"github.com/vcsforge/rcsmerge/internal/seq"
)

// Variant selects which of the three documented merge shapes a ClientMerge
// drives (spec.md §4.8).
type Variant int

const (
	// Binary2 compares digests only; no textual merge is attempted.
	Binary2 Variant = iota
	// Merge3 is the full three-way textual merge.
	Merge3
	// Merge32 is a two-way textual diff presented through the same
	// three-way interface (base faked empty).
	Merge32
)

func (v Variant) String() string {
	switch v {
	case Binary2:
		return "binary2"
	case Merge3:
		return "merge3"
	case Merge32:
		return "merge32"
	default:
		return "unknown"
	}
}

// ResolveStatus is the terminal state of a resolution (spec.md §4.8).
type ResolveStatus int

const (
	Yours ResolveStatus = iota
	Theirs
	Merged
	Edit
	Skip
	Quit
)

func (s ResolveStatus) String() string {
	switch s {
	case Yours:
		return "yours"
	case Theirs:
		return "theirs"
	case Merged:
		return "merged"
	case Edit:
		return "edit"
	case Skip:
		return "skip"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// ClientMerge is the C8 orchestrator state (spec.md §4.8's documented
// field set). This implementation buffers base/yours/theirs/result in
// memory rather than in named temp files — open()'s charset_converter and
// per-file FileSys rotation are likewise out of scope; see DESIGN.md.
type ClientMerge struct {
	Variant Variant
	Markers config.Markers
	ShowAll bool

	baseBuf, yourBuf, theirBuf, resultBuf []byte

	lastBits SelBits
	haveLast bool

	chunksYours    int
	chunksTheirs   int
	chunksBoth     int
	chunksConflict int
	markersInFile  int

	baseDigest   [16]byte
	yourDigest   [16]byte
	theirDigest  [16]byte
	resultDigest [16]byte
	closed       bool
}

// SelBits re-exports diffmerge's selection-bit type so callers driving
// write() don't need to import diffmerge directly for the common path.
type SelBits = diffmerge.SelBits

const (
	SelBase   = diffmerge.SelBase
	SelLeg1   = diffmerge.SelLeg1
	SelLeg2   = diffmerge.SelLeg2
	SelResult = diffmerge.SelResult
	SelConf   = diffmerge.SelConf
)

// Open creates a ClientMerge ready to accept write() calls (spec.md §4.8's
// open()).
func Open(variant Variant, markers config.Markers, showAll bool) *ClientMerge {
	return &ClientMerge{Variant: variant, Markers: markers, ShowAll: showAll}
}

// ChunksYours, ChunksTheirs, ChunksBoth, ChunksConflict, MarkersInFile
// expose the counters spec.md §4.8 documents as populated during
// write()/close().
func (c *ClientMerge) ChunksYours() int    { return c.chunksYours }
func (c *ClientMerge) ChunksTheirs() int   { return c.chunksTheirs }
func (c *ClientMerge) ChunksBoth() int     { return c.chunksBoth }
func (c *ClientMerge) ChunksConflict() int { return c.chunksConflict }
func (c *ClientMerge) MarkersInFile() int  { return c.markersInFile }
func (c *ClientMerge) Result() []byte      { return c.resultBuf }

// Write appends buf, routing it into base/yours/theirs by bits and into
// the result stream, emitting conflict markers at each selbits transition
// (spec.md §4.8's write()).
func (c *ClientMerge) Write(buf []byte, bits SelBits) {
	if bits&SelBase != 0 {
		c.baseBuf = append(c.baseBuf, buf...)
	}
	// Base text outside a conflict is unchanged in both legs, so it belongs
	// to yours and theirs as well.
	common := bits&SelBase != 0 && bits&SelConf == 0
	// diffmerge's own convention (matching its ChunksYours/ChunksTheirs
	// counting): leg1 is "theirs", leg2 is "yours".
	if bits&SelLeg1 != 0 || common {
		c.theirBuf = append(c.theirBuf, buf...)
	}
	if bits&SelLeg2 != 0 || common {
		c.yourBuf = append(c.yourBuf, buf...)
	}

	if !c.haveLast || bits != c.lastBits {
		oldConflict := c.haveLast && c.lastBits&SelConf != 0
		newConflict := bits&SelConf != 0
		c.handleTransition(c.lastBits, bits, c.haveLast)
		// A conflict group spans several same-SelConf segments (base, then
		// leg1, then leg2) but is exactly one chunk; only count it on the
		// transition into the group, not on every segment within it.
		if newConflict {
			if !oldConflict {
				c.chunksConflict++
			}
		} else {
			c.tallyChunk(bits)
		}
		c.haveLast = true
		c.lastBits = bits
	}

	if bits&SelConf != 0 || bits&SelResult != 0 {
		c.resultBuf = append(c.resultBuf, buf...)
	}
}

func (c *ClientMerge) tallyChunk(bits SelBits) {
	switch {
	case bits&SelLeg1 != 0 && bits&SelLeg2 != 0:
		c.chunksBoth++
	case bits&SelLeg1 != 0:
		c.chunksTheirs++
	case bits&SelLeg2 != 0:
		c.chunksYours++
	}
}

// handleTransition emits a marker line into the result stream when the
// selbits change: an end marker closing a conflict group, then a label
// marker opening whatever comes next, if the new segment needs one
// (spec.md §4.8: "a marker is emitted into the result file at each
// transition if show_all is set or the chunk is a conflict").
func (c *ClientMerge) handleTransition(oldBits, newBits SelBits, haveOld bool) {
	oldConflict := haveOld && oldBits&SelConf != 0
	newConflict := newBits&SelConf != 0

	if oldConflict && !newConflict {
		c.emit(c.Markers.End)
	}
	switch {
	case newConflict && newBits&SelBase != 0:
		c.emit(c.Markers.Original)
	case newConflict && newBits&SelLeg1 != 0:
		c.emit(c.Markers.Theirs)
	case newConflict && newBits&SelLeg2 != 0:
		c.emit(c.Markers.Yours)
	case !newConflict && c.ShowAll && newBits&SelLeg1 != 0 && newBits&SelLeg2 != 0:
		c.emit(c.Markers.Both)
	}
}

func (c *ClientMerge) emit(label string) {
	if label == "" {
		return
	}
	c.resultBuf = append(c.resultBuf, []byte(label+"\n")...)
	c.markersInFile++
}

// WriteBinary feeds the two full file contents compared by a Binary2
// merge, bypassing textual diffing entirely.
func (c *ClientMerge) WriteBinary(yourContent, theirContent []byte) {
	c.yourBuf = append(c.yourBuf, yourContent...)
	c.theirBuf = append(c.theirBuf, theirContent...)
	if bytesEqual(yourContent, theirContent) {
		c.resultBuf = append(c.resultBuf, theirContent...)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close finalizes digests over everything written so far (spec.md §4.8's
// close()).
func (c *ClientMerge) Close() {
	if c.haveLast && c.lastBits&SelConf != 0 {
		c.emit(c.Markers.End)
	}
	c.baseDigest = md5.Sum(c.baseBuf)
	c.yourDigest = md5.Sum(c.yourBuf)
	c.theirDigest = md5.Sum(c.theirBuf)
	c.resultDigest = md5.Sum(c.resultBuf)
	c.closed = true
}

// AutoResolve suggests a terminal status without user interaction
// (spec.md §4.8's auto_resolve()).
func (c *ClientMerge) AutoResolve(force bool) ResolveStatus {
	if c.yourDigest == c.theirDigest {
		return Theirs
	}
	if c.Variant == Binary2 {
		if force {
			return Theirs
		}
		return Skip
	}
	if c.chunksConflict > 0 {
		if !force {
			return Skip
		}
		return Merged
	}
	yoursChanged := c.chunksYours > 0
	theirsChanged := c.chunksTheirs > 0
	switch {
	case yoursChanged && !theirsChanged:
		return Yours
	case theirsChanged && !yoursChanged:
		return Theirs
	case yoursChanged && theirsChanged:
		return Merged
	default:
		return Theirs
	}
}

// DetectResolve recomputes currentResultContent's MD5 and classifies it
// against the yours and theirs digests and the digest of the engine's own
// merged output, in that order; the base digest is not consulted
// (spec.md §4.8's detect_resolve()).
func (c *ClientMerge) DetectResolve(currentResultContent []byte) ResolveStatus {
	d := md5.Sum(currentResultContent)
	switch {
	case d == c.yourDigest:
		return Yours
	case d == c.theirDigest:
		return Theirs
	case d == c.resultDigest:
		return Merged
	default:
		return Edit
	}
}

// Select writes the content corresponding to status to destPath, via a
// sibling-temp-file atomic rename (spec.md §4.8's select(): "moves the
// chosen temp into place as the final yours file").
func (c *ClientMerge) Select(status ResolveStatus, destPath string) error {
	var content []byte
	switch status {
	case Yours:
		content = c.yourBuf
	case Theirs:
		content = c.theirBuf
	case Merged, Edit:
		content = c.resultBuf
	default:
		return fmt.Errorf("clientmerge: cannot select terminal status %v", status)
	}
	return atomicWrite(destPath, content)
}

func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rcsmerge-*.tmp")
	if err != nil {
		return fmt.Errorf("clientmerge: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("clientmerge: write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("clientmerge: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("clientmerge: rename temp over %s: %w", path, err)
	}
	return nil
}

// Merge3Way runs a full DiffMerge (C5) over base/leg1/leg2 and drains it
// through a fresh ClientMerge, returning the orchestrator in its closed
// state ready for AutoResolve/Select.
func Merge3Way(base, leg1, leg2 *seq.Sequence, budget diffanalyze.Budget, grid config.GridMode, markers config.Markers, showAll bool) *ClientMerge {
	res := diffmerge.Merge(base, leg1, leg2, budget, diffmerge.Options{Grid: grid})
	variant := Merge3
	if grid == config.TwoWay {
		variant = Merge32
	}
	cm := Open(variant, markers, showAll)

	r := diffmerge.NewReader(res)
	buf := make([]byte, 8192)
	for {
		n, bits, state := r.Read(buf)
		if state == diffmerge.StateDone {
			break
		}
		if n > 0 {
			cm.Write(append([]byte(nil), buf[:n]...), bits)
		}
	}
	cm.Close()
	return cm
}
