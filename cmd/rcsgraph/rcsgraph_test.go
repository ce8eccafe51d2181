package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/rcsmerge/config"
	"github.com/vcsforge/rcsmerge/internal/rcs"
)

func writeTestArchive(t *testing.T, path string) *rcs.RcsArchive {
	t.Helper()
	a := &rcs.RcsArchive{Comment: "#"}
	rev11, err := rcs.ParseRevId("1.1")
	require.NoError(t, err)
	require.NoError(t, rcs.Checkin(a, []byte("one\n"), rev11, "2026.01.01.00.00.00", "tester", "Exp", config.New().Budget()))
	rev12, err := rcs.ParseRevId("1.2")
	require.NoError(t, err)
	require.NoError(t, rcs.Checkin(a, []byte("one\ntwo\n"), rev12, "2026.01.02.00.00.00", "tester", "Exp", config.New().Budget()))
	require.NoError(t, rcs.WriteArchive(path, a, false))
	return a
}

func TestBuildGraphIncludesAllRevisions(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "f.txt,v")
	writeTestArchive(t, archivePath)

	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	a, err := rcs.Parse(data, rcs.RevId{})
	require.NoError(t, err)

	g := buildGraph(a, "f.txt")
	out := g.String()
	assert.Contains(t, out, "1.1")
	assert.Contains(t, out, "1.2")
}

func TestRunWritesDotSource(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "f.txt,v")
	writeTestArchive(t, archivePath)

	dotPath := filepath.Join(dir, "out.dot")
	require.NoError(t, run(archivePath, dotPath, ""))

	got, err := os.ReadFile(dotPath)
	require.NoError(t, err)
	assert.Contains(t, string(got), "digraph")
}
