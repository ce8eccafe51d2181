package rcs

// AtPolicy records whether an on-disk chunk's '@' bytes were literal
// (Clean, impossible in valid RCS text since '@' always needs escaping
// inside an at-block, kept for completeness), singly-escaped (Single, the
// normal on-disk doubled-@ form decoded down to single '@' in memory), or
// carried through as an already-length-prefixed fast-format block with no
// quoting at all (Double, which Parse sets for every "%N" chunk)
// (spec.md §3, §6.1).
type AtPolicy int

const (
	Clean AtPolicy = iota
	Single
	Double
)

// RcsChunk is a decoded byte span from the archive: text or log content
// that has already had its on-disk quoting removed (spec.md §3). This
// implementation parses the whole archive into memory rather than keeping
// chunks as lazy (offset,length) references into a memory-mapped file; see
// DESIGN.md for why the chunk-aliasing/lifetime model was collapsed.
type RcsChunk struct {
	Bytes  []byte
	Policy AtPolicy
}

// RcsRev is one revision's metadata plus its stored text, which is either
// full content (head revision) or a reverse delta in the RCS edit-script
// grammar (spec.md §3, §6.2).
type RcsRev struct {
	Name     RevId
	Date     string
	Author   string
	State    string
	Branches []RevId
	Next     RevId // empty means no next
	Log      RcsChunk
	Text     RcsChunk
	Deleted  bool
}

// RcsArchive is the full in-memory model of a parsed ",v" file (spec.md
// §3).
type RcsArchive struct {
	Head       RevId
	BranchRoot RevId
	Access     []string
	Symbols    []SymbolDef
	Locks      []LockDef
	Strict     bool
	Comment    string
	ExpandMode string
	Desc       string
	Revs       []*RcsRev
}

// SymbolDef is one `symbols` table entry (`name:revision`).
type SymbolDef struct {
	Name string
	Rev  RevId
}

// LockDef is one `locks` table entry (`user:revision`).
type LockDef struct {
	User string
	Rev  RevId
}

// FindRevision resolves name to its RcsRev, or NoRev if absent (spec.md
// §4.7.1 "cross-links are resolved later via find_revision(name)").
func (a *RcsArchive) FindRevision(name RevId) (*RcsRev, error) {
	for _, r := range a.Revs {
		if r.Name.String() == name.String() {
			return r, nil
		}
	}
	return nil, errNoRev(name.String())
}

// FollowRevision walks from cur toward tgt, one RevCmp-classified step at a
// time, and returns tgt's RcsRev once RevCmp reports Equal (spec.md
// §4.7.2). DownTrunk/OutBranch follow Next (NoRev at the end of the chain,
// Loop on revisiting a revision); AtBranch/NumBranch enter the branch that
// leads to tgt (NoBranch if none does); Mismatch/UpTrunk/InBranch fail with
// Loop.
func (a *RcsArchive) FollowRevision(cur, tgt RevId) (*RcsRev, error) {
	curRev, err := a.FindRevision(cur)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{cur.String(): true}
	for {
		switch RevCmp(tgt, curRev.Name) {
		case Equal:
			return curRev, nil
		case DownTrunk, OutBranch:
			if curRev.Next.Empty() {
				return nil, errNoRev(tgt.String())
			}
			next, err := a.FindRevision(curRev.Next)
			if err != nil {
				return nil, err
			}
			if seen[next.Name.String()] {
				return nil, errLoop(next.Name.String())
			}
			seen[next.Name.String()] = true
			curRev = next
		case AtBranch, NumBranch:
			found := false
			for _, b := range curRev.Branches {
				branchRev, err := a.FindRevision(b)
				if err != nil {
					continue
				}
				if RevCmp(tgt, b) == Equal || RevCmp(tgt, b) == OutBranch {
					curRev = branchRev
					found = true
					break
				}
			}
			if !found {
				return nil, errNoBranch(tgt.String())
			}
		default:
			return nil, errLoop(curRev.Name.String())
		}
	}
}
