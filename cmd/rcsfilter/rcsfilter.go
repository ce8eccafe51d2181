package main

// rcsfilter scrubs the stored text and log content out of an RCS archive,
// replacing each revision's payload with a placeholder that records only
// its original byte length, while leaving every structural field (revision
// numbers, dates, authors, states, branches, next-pointers, symbols, locks)
// untouched. This is the RCS-domain descendant of the teacher's gitfilter
// tool, which did the same thing to git fast-export blobs: produce a
// structurally faithful but content-free archive, suitable for attaching to
// a bug report or a regression fixture without leaking file contents.
//
// The teacher's gitfilter parsed the git fast-export wire format with
// go-libgitfastimport. That parser has no RCS analog to delegate to here:
// archives are read and rewritten with internal/rcs's own grammar, which is
// the parser this whole module is built around.

import (
	"fmt"
	"os"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vcsforge/rcsmerge/internal/rcs"
)

var (
	archivePath = kingpin.Arg("archive", "RCS archive (\",v\") file to scrub.").Required().String()
	outputPath  = kingpin.Flag("output", "Write the scrubbed archive here instead of stdout.").Short('o').String()
	scrubLog    = kingpin.Flag("scrub-log", "Also scrub log messages (kept by default).").Bool()
	fastFormat  = kingpin.Flag("fast-format", "Write scrubbed chunks in RCS fast-format (\"%N\\n...\") rather than \"@...@\" blocks.").Bool()
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("rcsfilter")).Author("vcsforge")
	kingpin.CommandLine.Help = "Scrub revision content out of an RCS archive, keeping its structure intact.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()

	if err := run(logger, *archivePath, *outputPath, *scrubLog, *fastFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, archivePath, outputPath string, scrubLog, fastFormat bool) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	a, err := rcs.Parse(data, rcs.RevId{})
	if err != nil {
		return fmt.Errorf("rcsfilter: parse %s: %w", archivePath, err)
	}

	scrubbed := scrubArchive(a, scrubLog)
	logger.Infof("scrubbed %d revision(s) in %s", len(scrubbed.Revs), archivePath)

	out := rcs.Generate(scrubbed, fastFormat)
	if outputPath == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(outputPath, out, 0644)
}

// scrubArchive returns a copy of a with every revision's Text (and, if
// scrubLog is set, Log) chunk replaced by a placeholder recording only the
// original content's length, mirroring the teacher's blob.Data =
// fmt.Sprintf("%d\n", blob.Mark) substitution in gitfilter.go.
func scrubArchive(a *rcs.RcsArchive, scrubLog bool) *rcs.RcsArchive {
	out := *a
	out.Revs = make([]*rcs.RcsRev, len(a.Revs))
	for i, r := range a.Revs {
		scrubbedRev := *r
		scrubbedRev.Text = rcs.RcsChunk{Bytes: placeholder(r.Text.Bytes)}
		if scrubLog {
			scrubbedRev.Log = rcs.RcsChunk{Bytes: placeholder(r.Log.Bytes)}
		}
		out.Revs[i] = &scrubbedRev
	}
	return &out
}

func placeholder(content []byte) []byte {
	return []byte(fmt.Sprintf("%d\n", len(content)))
}
