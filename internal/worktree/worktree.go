// Package worktree reconciles a working directory of plain files against a
// mirrored directory of RCS archives, adapted from the teacher's node.Node
// commit-tree reconciliation (spec.md "Bulk/orchestration glue"). Where the
// teacher's Node tracked which paths a git commit touched so renames and
// deletes could be reconciled against the prior commit's tree, this Node
// tracks which paths a working directory touched so each can be checked in
// as (or against) its own RcsArchive — one archive per file, addressed by
// its path relative to the working directory root.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/rcs"
)

// rcsDate renders the current time in RCS's admin-header date format
// (spec.md §4.7.1, YYYY.MM.DD.HH.MM.SS).
func rcsDate() string { return time.Now().UTC().Format("2006.01.02.15.04.05") }

// Node is a directory-tree node recording which plain files exist under a
// working directory, the same shape as the teacher's commit-file tree but
// walking a filesystem instead of a fast-export commit.
type Node struct {
	Name            string
	Path            string
	IsFile          bool
	CaseInsensitive bool
	Children        []*Node
}

func (n *Node) stringEqual(s1, s2 string) bool {
	if n.CaseInsensitive {
		return len(s1) == len(s2) && strings.EqualFold(s1, s2)
	}
	return len(s1) == len(s2) && s1 == s2
}

// NewNode returns an empty tree root.
func NewNode(name string, caseInsensitive bool) *Node {
	return &Node{Name: name, CaseInsensitive: caseInsensitive}
}

// AddSubFile registers fullPath (the path recorded on the leaf) under
// subPath, splitting on '/' one directory component at a time.
func (n *Node) AddSubFile(fullPath string, subPath string) {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for _, c := range n.Children {
			if n.stringEqual(c.Name, parts[0]) {
				return
			}
		}
		n.Children = append(n.Children, &Node{Name: parts[0], IsFile: true, Path: fullPath, CaseInsensitive: n.CaseInsensitive})
		return
	}
	for _, c := range n.Children {
		if n.stringEqual(c.Name, parts[0]) {
			c.AddSubFile(fullPath, strings.Join(parts[1:], "/"))
			return
		}
	}
	n.Children = append(n.Children, NewNode(parts[0], n.CaseInsensitive))
	n.Children[len(n.Children)-1].AddSubFile(fullPath, strings.Join(parts[1:], "/"))
}

// AddFile is AddSubFile rooted at path itself.
func (n *Node) AddFile(path string) { n.AddSubFile(path, path) }

func (n *Node) getChildFiles() []string {
	files := make([]string, 0)
	for _, c := range n.Children {
		if c.IsFile {
			files = append(files, c.Path)
		} else {
			files = append(files, c.getChildFiles()...)
		}
	}
	return files
}

// Files returns every leaf path recorded in the tree, in traversal order.
func (n *Node) Files() []string { return n.getChildFiles() }

// archiveSuffix is the conventional on-disk suffix for an RCS master file.
const archiveSuffix = ",v"

// ArchivePath maps a working-directory-relative file path to its archive
// path under archiveDir (spec.md §4.7's ",v" naming convention).
func ArchivePath(archiveDir, relPath string) string {
	return filepath.Join(archiveDir, relPath+archiveSuffix)
}

// Scan walks workingDir and returns a Node tree of every regular file found,
// relative to workingDir, skipping archiveDir if it is nested inside (so a
// checkin run never tries to check in its own archives).
func Scan(workingDir string, archiveDir string, caseInsensitive bool) (*Node, error) {
	root := NewNode("", caseInsensitive)
	absArchiveDir, _ := filepath.Abs(archiveDir)
	err := filepath.Walk(workingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absArchiveDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workingDir, path)
		if err != nil {
			return err
		}
		root.AddFile(filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("worktree: scan %s: %w", workingDir, err)
	}
	return root, nil
}

// CheckinOutcome is one file's result from a batch checkin run.
type CheckinOutcome struct {
	RelPath   string
	Revision  string
	Unchanged bool
	Err       error
}

// BatchCheckin fans out one checkin per file discovered under workingDir to
// pool, one worker per archive, so independent archives are never touched by
// more than one goroutine at a time (spec.md §5: "different archives may run
// concurrently"). Each file gets its own archive at ArchivePath(archiveDir,
// relPath); a file with no existing archive starts a fresh one at revision
// 1.1. Content identical to the archive's current head is reported as
// Unchanged and not checked in again.
func BatchCheckin(pool *pond.WorkerPool, logger *logrus.Logger, workingDir, archiveDir string, cfg *config.Config, author string) ([]CheckinOutcome, error) {
	tree, err := Scan(workingDir, archiveDir, false)
	if err != nil {
		return nil, err
	}
	files := tree.Files()

	var mu sync.Mutex
	outcomes := make([]CheckinOutcome, 0, len(files))
	var group sync.WaitGroup

	for _, relPath := range files {
		relPath := relPath
		group.Add(1)
		pool.Submit(func() {
			defer group.Done()
			outcome := checkinOne(logger, workingDir, archiveDir, relPath, author, cfg)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		})
	}
	group.Wait()
	return outcomes, nil
}

func checkinOne(logger *logrus.Logger, workingDir, archiveDir, relPath, author string, cfg *config.Config) CheckinOutcome {
	content, err := os.ReadFile(filepath.Join(workingDir, filepath.FromSlash(relPath)))
	if err != nil {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: read %s: %w", relPath, err)}
	}

	archivePath := ArchivePath(archiveDir, relPath)
	var archive *rcs.RcsArchive
	if existing, err := os.ReadFile(archivePath); err == nil {
		archive, err = rcs.Parse(existing, rcs.RevId{})
		if err != nil {
			return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: parse %s: %w", archivePath, err)}
		}
	} else if !os.IsNotExist(err) {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: stat %s: %w", archivePath, err)}
	}

	if archive == nil {
		archive = &rcs.RcsArchive{Comment: "#"}
		rev, err := rcs.ParseRevId("1.1")
		if err != nil {
			return CheckinOutcome{RelPath: relPath, Err: err}
		}
		if err := rcs.Checkin(archive, content, rev, rcsDate(), author, "Exp", cfg.Budget()); err != nil {
			return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: checkin %s: %w", relPath, err)}
		}
		if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
			return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: mkdir for %s: %w", archivePath, err)}
		}
		if err := rcs.WriteArchive(archivePath, archive, false); err != nil {
			return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: write %s: %w", archivePath, err)}
		}
		if logger != nil {
			logger.Infof("worktree: created %s at 1.1", archivePath)
		}
		return CheckinOutcome{RelPath: relPath, Revision: "1.1"}
	}

	headContent, err := rcs.Checkout(archive, archive.Head)
	if err != nil {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: checkout %s head: %w", archivePath, err)}
	}
	if string(headContent) == string(content) {
		return CheckinOutcome{RelPath: relPath, Revision: archive.Head.String(), Unchanged: true}
	}

	nextRev, err := archive.Head.NextMinor()
	if err != nil {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: next revision for %s: %w", archivePath, err)}
	}
	if err := rcs.Checkin(archive, content, nextRev, rcsDate(), author, "Exp", cfg.Budget()); err != nil {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: checkin %s: %w", relPath, err)}
	}
	if err := rcs.WriteArchive(archivePath, archive, false); err != nil {
		return CheckinOutcome{RelPath: relPath, Err: fmt.Errorf("worktree: write %s: %w", archivePath, err)}
	}
	if logger != nil {
		logger.Infof("worktree: checked in %s at %s", archivePath, nextRev.String())
	}
	return CheckinOutcome{RelPath: relPath, Revision: nextRev.String()}
}
