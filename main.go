package main

// rcsmerge is a standalone RCS-archive diff/merge/checkin tool.
//
// Design:
// Each subcommand loads whatever RCS ",v" archives and working files it
// needs, drives the relevant internal engine (diffanalyze/diffformat for
// diff, diffmerge/clientmerge for merge3, rcs for co/ci/rlog/rm,
// multimerge for annotate), and writes its result to stdout or to the
// destination path given on the command line. Subcommands never share
// in-process state; each archive file is opened, mutated and rewritten
// within the single goroutine handling that subcommand invocation, except
// `ci --all`, which fans out one goroutine per archive via a pond worker
// pool (spec.md §5: different archives may run concurrently).
//
// Notes:
// * RCS delta direction, grid-mode collapsing and other subtler behaviors
//   are documented in DESIGN.md rather than repeated here.

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/perforce/p4prometheus/version"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/clientmerge"
	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
	"github.com/vcsforge/rcsmerge/internal/diffformat"
	"github.com/vcsforge/rcsmerge/internal/multimerge"
	"github.com/vcsforge/rcsmerge/internal/rcs"
	"github.com/vcsforge/rcsmerge/internal/readfile"
	"github.com/vcsforge/rcsmerge/internal/seq"
	"github.com/vcsforge/rcsmerge/internal/worktree"
)

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for rcsmerge.",
		).Default("rcsmerge.yaml").Short('c').String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level (repeat for more verbosity).",
		).Int()
		profileFlag = kingpin.Flag(
			"profile",
			"Enable CPU profiling to ./cpu.pprof.",
		).Bool()

		diffCmd     = kingpin.Command("diff", "Diff two files, in normal/unified/context/HTML format.")
		diffFormat  = diffCmd.Flag("format", "Output format: normal, unified, context, html.").Default("unified").Short('f').String()
		diffContext = diffCmd.Flag("context", "Context lines for unified/context format.").Short('C').Int()
		diffA       = diffCmd.Arg("a", "First file.").Required().String()
		diffB       = diffCmd.Arg("b", "Second file.").Required().String()

		merge3Cmd     = kingpin.Command("merge3", "Three-way merge of base/yours/theirs.")
		merge3Grid    = merge3Cmd.Flag("grid", "Grid mode: optimal, guarded, twoway.").Default("optimal").String()
		merge3ShowAll = merge3Cmd.Flag("show-all", "Emit BOTH markers even for non-conflicting agreement.").Bool()
		merge3Force   = merge3Cmd.Flag("force", "Force a resolution even when the merge is ambiguous.").Bool()
		merge3Out     = merge3Cmd.Flag("output", "Write the chosen resolution to this path instead of stdout.").Short('o').String()
		merge3Base    = merge3Cmd.Arg("base", "Common ancestor file.").Required().String()
		merge3Yours   = merge3Cmd.Arg("yours", "Your file (leg2).").Required().String()
		merge3Theirs  = merge3Cmd.Arg("theirs", "Their file (leg1).").Required().String()

		coCmd = kingpin.Command("co", "Check out a revision from an RCS archive.")
		coRev = coCmd.Flag("rev", "Revision to check out (defaults to head).").Short('r').String()
		coOut = coCmd.Flag("output", "Write checked-out content to this path instead of stdout.").Short('o').String()
		coArc = coCmd.Arg("archive", "RCS archive (\",v\") file.").Required().String()

		ciCmd    = kingpin.Command("ci", "Check in a new revision to an RCS archive.")
		ciRev    = ciCmd.Flag("rev", "Revision number to create (trunk only; defaults to the next minor after head).").Short('r').String()
		ciAuthor = ciCmd.Flag("author", "Author recorded on the new revision.").Default(os.Getenv("USER")).String()
		ciAll    = ciCmd.Flag("all", "Bulk checkin: walk working-dir and check in every changed file against archive-dir.").Bool()
		ciWork   = ciCmd.Flag("working-dir", "Working directory to scan when --all is given.").Default(".").String()
		ciArcDir = ciCmd.Flag("archive-dir", "Directory of RCS archives to check into when --all is given.").String()
		ciArc    = ciCmd.Arg("archive", "RCS archive (\",v\") file (ignored with --all).").String()
		ciFile   = ciCmd.Arg("file", "New content to check in (ignored with --all).").String()

		rlogCmd = kingpin.Command("rlog", "List an archive's revision history.")
		rlogArc = rlogCmd.Arg("archive", "RCS archive (\",v\") file.").Required().String()

		rmCmd = kingpin.Command("rm", "Mark a revision dead without discarding its delta.")
		rmRev = rmCmd.Arg("rev", "Revision to delete.").Required().String()
		rmArc = rmCmd.Arg("archive", "RCS archive (\",v\") file.").Required().String()

		annotateCmd = kingpin.Command("annotate", "Show which revision introduced each line of an archive's head.")
		annotateArc = annotateCmd.Arg("archive", "RCS archive (\",v\") file.").Required().String()
	)

	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("rcsmerge")).Author("vcsforge")
	kingpin.CommandLine.Help = "Diff, merge and maintain RCS \",v\" archives.\n"
	kingpin.HelpFlag.Short('h')
	cmd := kingpin.Parse()

	if *profileFlag {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}

	var cmdErr error
	switch cmd {
	case diffCmd.FullCommand():
		cmdErr = runDiff(cfg, *diffA, *diffB, *diffFormat, *diffContext)
	case merge3Cmd.FullCommand():
		cmdErr = runMerge3(logger, cfg, *merge3Base, *merge3Theirs, *merge3Yours, *merge3Grid, *merge3ShowAll, *merge3Force, *merge3Out)
	case coCmd.FullCommand():
		cmdErr = runCheckout(*coArc, *coRev, *coOut)
	case ciCmd.FullCommand():
		if *ciAll {
			cmdErr = runBatchCheckin(logger, cfg, *ciWork, *ciArcDir, *ciAuthor)
		} else {
			cmdErr = runCheckin(cfg, *ciArc, *ciFile, *ciRev, *ciAuthor)
		}
	case rlogCmd.FullCommand():
		cmdErr = runRlog(*rlogArc)
	case rmCmd.FullCommand():
		cmdErr = runDelete(cfg, *rmArc, *rmRev)
	case annotateCmd.FullCommand():
		cmdErr = runAnnotate(cfg, *annotateArc)
	}

	if cmdErr != nil {
		logger.Errorf("%v", cmdErr)
		os.Exit(1)
	}
}

func openSeq(path string, cfg *config.Config) (*seq.Sequence, func() error, error) {
	rf, err := readfile.Open(path, cfg.MmapLimit, cfg.ReadBufSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	s, err := seq.New(rf, seq.Flags{Mode: seq.Line})
	if err != nil {
		rf.Close()
		return nil, nil, fmt.Errorf("sequence %s: %w", path, err)
	}
	return s, rf.Close, nil
}

func runDiff(cfg *config.Config, aPath, bPath, format string, context int) error {
	if context <= 0 {
		context = cfg.ContextLines
	}
	a, closeA, err := openSeq(aPath, cfg)
	if err != nil {
		return err
	}
	defer closeA()
	b, closeB, err := openSeq(bPath, cfg)
	if err != nil {
		return err
	}
	defer closeB()

	d := diffanalyze.New(a, b, cfg.Budget())
	head := d.Snakes()
	switch format {
	case "normal":
		diffformat.Normal(os.Stdout, a, b, head)
	case "context":
		diffformat.Context(os.Stdout, a, b, head, context)
	case "html":
		diffformat.HTML(os.Stdout, a, b, head)
	case "rcs":
		diffformat.RCS(os.Stdout, a, b, head)
	default:
		diffformat.Unified(os.Stdout, a, b, head, context)
	}
	return nil
}

func runMerge3(logger *logrus.Logger, cfg *config.Config, basePath, theirsPath, yoursPath, gridName string, showAll, force bool, outPath string) error {
	grid, err := config.ParseGridMode(gridName)
	if err != nil {
		return err
	}
	base, closeBase, err := openSeq(basePath, cfg)
	if err != nil {
		return err
	}
	defer closeBase()
	theirs, closeTheirs, err := openSeq(theirsPath, cfg)
	if err != nil {
		return err
	}
	defer closeTheirs()
	yours, closeYours, err := openSeq(yoursPath, cfg)
	if err != nil {
		return err
	}
	defer closeYours()

	cm := clientmerge.Merge3Way(base, theirs, yours, cfg.Budget(), grid, cfg.MergeMarkers, showAll || cfg.ShowAllMarkers)
	status := cm.AutoResolve(force)
	logger.Infof("merge3: %d yours, %d theirs, %d both, %d conflict -> %s", cm.ChunksYours(), cm.ChunksTheirs(), cm.ChunksBoth(), cm.ChunksConflict(), status)

	if outPath != "" {
		return cm.Select(status, outPath)
	}
	os.Stdout.Write(cm.Result())
	if status == clientmerge.Skip {
		return fmt.Errorf("merge3: unresolved conflicts, rerun with --force or --output to capture the marked-up result")
	}
	return nil
}

func runCheckout(archivePath, revStr, outPath string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	a, err := rcs.Parse(data, rcs.RevId{})
	if err != nil {
		return err
	}
	target := a.Head
	if revStr != "" {
		if target, err = rcs.ParseRevId(revStr); err != nil {
			return err
		}
	}
	content, err := rcs.Checkout(a, target)
	if err != nil {
		return err
	}
	if outPath != "" {
		return os.WriteFile(outPath, content, 0644)
	}
	_, err = os.Stdout.Write(content)
	return err
}

func runCheckin(cfg *config.Config, archivePath, filePath, revStr, author string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var a *rcs.RcsArchive
	if existing, err := os.ReadFile(archivePath); err == nil {
		if a, err = rcs.Parse(existing, rcs.RevId{}); err != nil {
			return err
		}
	} else if os.IsNotExist(err) {
		a = &rcs.RcsArchive{Comment: "#"}
	} else {
		return err
	}

	var rev rcs.RevId
	if revStr != "" {
		if rev, err = rcs.ParseRevId(revStr); err != nil {
			return err
		}
	} else if a.Head.Empty() {
		rev = rcs.NewTrunkRev(1, 1)
	} else {
		if rev, err = a.Head.NextMinor(); err != nil {
			return err
		}
	}

	if err := rcs.Checkin(a, content, rev, time.Now().UTC().Format("2006.01.02.15.04.05"), author, "Exp", cfg.Budget()); err != nil {
		return err
	}
	return rcs.WriteArchive(archivePath, a, false)
}

func runBatchCheckin(logger *logrus.Logger, cfg *config.Config, workingDir, archiveDir, author string) error {
	if archiveDir == "" {
		return fmt.Errorf("ci --all requires --archive-dir")
	}
	pool := pond.New(runtime.NumCPU(), 0, pond.MinWorkers(10))
	defer pool.StopAndWait()

	outcomes, err := worktree.BatchCheckin(pool, logger, workingDir, archiveDir, cfg, author)
	if err != nil {
		return err
	}
	var failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
			logger.Errorf("%s: %v", o.RelPath, o.Err)
		case o.Unchanged:
			logger.Debugf("%s: unchanged at %s", o.RelPath, o.Revision)
		default:
			logger.Infof("%s: checked in %s", o.RelPath, o.Revision)
		}
	}
	if failed > 0 {
		return fmt.Errorf("ci --all: %d of %d files failed", failed, len(outcomes))
	}
	return nil
}

func runRlog(archivePath string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	a, err := rcs.Parse(data, rcs.RevId{})
	if err != nil {
		return err
	}
	fmt.Printf("RCS file: %s\n", archivePath)
	fmt.Printf("head: %s\n", a.Head)
	fmt.Printf("description:\n%s\n", a.Desc)
	for _, r := range a.Revs {
		state := r.State
		if r.Deleted {
			state = "dead"
		}
		fmt.Printf("----------------------------\nrevision %s\ndate: %s; author: %s; state: %s;\n%s\n", r.Name, r.Date, r.Author, state, r.Log.Bytes)
	}
	return nil
}

func runDelete(cfg *config.Config, archivePath, revStr string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	a, err := rcs.Parse(data, rcs.RevId{})
	if err != nil {
		return err
	}
	rev, err := rcs.ParseRevId(revStr)
	if err != nil {
		return err
	}
	if err := rcs.Delete(a, rev, cfg.Budget()); err != nil {
		return err
	}
	return rcs.WriteArchive(archivePath, a, false)
}

func runAnnotate(cfg *config.Config, archivePath string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	a, err := rcs.Parse(data, rcs.RevId{})
	if err != nil {
		return err
	}
	content, err := rcs.Checkout(a, a.Head)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp("", "rcsmerge-annotate-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	mm := multimerge.New()
	if err := mm.Add(tmp.Name(), 1, 0, cfg.MmapLimit, cfg.ReadBufSize, cfg.Budget()); err != nil {
		return err
	}
	for l := mm.Head(); l != nil; l = l.Next {
		fmt.Printf("%s\t%s", a.Head, l.Bytes)
	}
	return nil
}
