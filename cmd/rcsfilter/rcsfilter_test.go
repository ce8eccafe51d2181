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

func buildArchive(t *testing.T) *rcs.RcsArchive {
	t.Helper()
	a := &rcs.RcsArchive{Comment: "#"}
	rev11, err := rcs.ParseRevId("1.1")
	require.NoError(t, err)
	require.NoError(t, rcs.Checkin(a, []byte("secret line one\n"), rev11, "2026.01.01.00.00.00", "tester", "Exp", config.New().Budget()))
	rev12, err := rcs.ParseRevId("1.2")
	require.NoError(t, err)
	require.NoError(t, rcs.Checkin(a, []byte("secret line one\nsecret line two\n"), rev12, "2026.01.02.00.00.00", "tester", "Exp", config.New().Budget()))
	return a
}

func TestScrubArchiveRemovesContentKeepsStructure(t *testing.T) {
	a := buildArchive(t)
	scrubbed := scrubArchive(a, false)

	require.Len(t, scrubbed.Revs, len(a.Revs))
	assert.Equal(t, a.Head.String(), scrubbed.Head.String())
	for i, r := range scrubbed.Revs {
		orig := a.Revs[i]
		assert.Equal(t, orig.Name.String(), r.Name.String())
		assert.Equal(t, orig.Date, r.Date)
		assert.Equal(t, orig.Author, r.Author)
		assert.NotContains(t, string(r.Text.Bytes), "secret")
	}
}

func TestScrubArchiveKeepsLogByDefault(t *testing.T) {
	a := buildArchive(t)
	for _, r := range a.Revs {
		r.Log = rcs.RcsChunk{Bytes: []byte("fixed a bug\n")}
	}

	scrubbed := scrubArchive(a, false)
	for _, r := range scrubbed.Revs {
		assert.Equal(t, "fixed a bug\n", string(r.Log.Bytes))
	}

	scrubbedLog := scrubArchive(a, true)
	for _, r := range scrubbedLog.Revs {
		assert.NotContains(t, string(r.Log.Bytes), "fixed a bug")
	}
}

func TestRunWritesScrubbedArchiveToFile(t *testing.T) {
	dir := t.TempDir()
	a := buildArchive(t)
	archivePath := filepath.Join(dir, "f.txt,v")
	require.NoError(t, rcs.WriteArchive(archivePath, a, false))

	outPath := filepath.Join(dir, "f.txt,v.scrubbed")
	require.NoError(t, run(nopLogger(), archivePath, outPath, false, false))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	reparsed, err := rcs.Parse(data, rcs.RevId{})
	require.NoError(t, err)
	assert.Equal(t, a.Head.String(), reparsed.Head.String())
	require.Len(t, reparsed.Revs, len(a.Revs))
}
