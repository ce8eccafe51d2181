package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/rcs"
)

func nopLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdout
	os.Stdout = w
	fnErr := fn()
	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out), fnErr
}

func TestRunDiffUnified(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a")
	bPath := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(aPath, []byte("one\ntwo\nthree\n"), 0644))
	require.NoError(t, os.WriteFile(bPath, []byte("one\nTWO\nthree\n"), 0644))

	out, err := captureStdout(t, func() error {
		return runDiff(config.New(), aPath, bPath, "unified", 3)
	})
	require.NoError(t, err)
	assert.Contains(t, out, "-two")
	assert.Contains(t, out, "+TWO")
}

func TestRunCheckinThenCheckout(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, os.WriteFile(filePath, []byte("line one\n"), 0644))

	cfg := config.New()
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	out, err := captureStdout(t, func() error {
		return runCheckout(archivePath, "", "")
	})
	require.NoError(t, err)
	assert.Equal(t, "line one\n", out)

	require.NoError(t, os.WriteFile(filePath, []byte("line one\nline two\n"), 0644))
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	out, err = captureStdout(t, func() error {
		return runCheckout(archivePath, "1.1", "")
	})
	require.NoError(t, err)
	assert.Equal(t, "line one\n", out)

	out, err = captureStdout(t, func() error {
		return runCheckout(archivePath, "1.2", "")
	})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)
}

func TestRunCheckoutToFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, os.WriteFile(filePath, []byte("hello\n"), 0644))
	cfg := config.New()
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, runCheckout(archivePath, "", outPath))
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestRunMerge3AutoResolvesDisjoint(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base")
	theirsPath := filepath.Join(dir, "theirs")
	yoursPath := filepath.Join(dir, "yours")
	require.NoError(t, os.WriteFile(basePath, []byte("a\nb\nc\n"), 0644))
	require.NoError(t, os.WriteFile(theirsPath, []byte("A\nb\nc\n"), 0644))
	require.NoError(t, os.WriteFile(yoursPath, []byte("a\nb\nC\n"), 0644))

	outPath := filepath.Join(dir, "merged")
	err := runMerge3(nopLogger(), config.New(), basePath, theirsPath, yoursPath, "optimal", false, false, outPath)
	require.NoError(t, err)
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "A\nb\nC\n", string(got))
}

func TestRunMerge3ConflictSkipsWithoutForce(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base")
	theirsPath := filepath.Join(dir, "theirs")
	yoursPath := filepath.Join(dir, "yours")
	require.NoError(t, os.WriteFile(basePath, []byte("a\n"), 0644))
	require.NoError(t, os.WriteFile(theirsPath, []byte("theirs\n"), 0644))
	require.NoError(t, os.WriteFile(yoursPath, []byte("yours\n"), 0644))

	_, err := captureStdout(t, func() error {
		return runMerge3(nopLogger(), config.New(), basePath, theirsPath, yoursPath, "optimal", false, false, "")
	})
	assert.Error(t, err)
}

func TestRunDeleteMarksRevisionDead(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, os.WriteFile(filePath, []byte("one\n"), 0644))
	cfg := config.New()
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))
	require.NoError(t, os.WriteFile(filePath, []byte("one\ntwo\n"), 0644))
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	require.NoError(t, runDelete(cfg, archivePath, "1.2"))

	// Generate skips deleted revisions entirely (spec.md §4.7.6), so after
	// the delete is persisted and the archive reread, 1.2 is gone and 1.1
	// has been promoted to head.
	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	a, err := rcs.Parse(data, rcs.RevId{})
	require.NoError(t, err)
	assert.Equal(t, "1.1", a.Head.String())

	rev, err := rcs.ParseRevId("1.2")
	require.NoError(t, err)
	_, err = a.FindRevision(rev)
	assert.Error(t, err)

	out, err := captureStdout(t, func() error {
		return runCheckout(archivePath, "1.1", "")
	})
	require.NoError(t, err)
	assert.Equal(t, "one\n", out)
}

func TestRunRlogListsRevisions(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, os.WriteFile(filePath, []byte("one\n"), 0644))
	cfg := config.New()
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	out, err := captureStdout(t, func() error {
		return runRlog(archivePath)
	})
	require.NoError(t, err)
	assert.Contains(t, out, "revision 1.1")
}

func TestRunAnnotateReportsRevisionPerLine(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, os.WriteFile(filePath, []byte("one\ntwo\n"), 0644))
	cfg := config.New()
	require.NoError(t, runCheckin(cfg, archivePath, filePath, "", "tester"))

	out, err := captureStdout(t, func() error {
		return runAnnotate(cfg, archivePath)
	})
	require.NoError(t, err)
	assert.Contains(t, out, "1.1\tone\n")
	assert.Contains(t, out, "1.1\ttwo\n")
}

func TestRunBatchCheckin(t *testing.T) {
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, ".rcs")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0644))

	require.NoError(t, runBatchCheckin(nopLogger(), config.New(), dir, archiveDir, "tester"))

	_, err := os.Stat(filepath.Join(archiveDir, "a.txt,v"))
	require.NoError(t, err)
}
