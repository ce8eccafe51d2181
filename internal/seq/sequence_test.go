package seq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/rcsmerge/internal/readfile"
)

func open(t *testing.T, content string) *readfile.ReadFile {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	rf, err := readfile.Open(p, 1<<20, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { rf.Close() })
	return rf
}

func TestLineSequenceCount(t *testing.T) {
	s, err := New(open(t, "a\nb\nc\n"), Flags{Mode: Line})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())
	assert.EqualValues(t, 0, s.Offset(0))
	assert.EqualValues(t, 6, s.Offset(3))
}

func TestLineSequenceNoTrailingNewline(t *testing.T) {
	s, err := New(open(t, "a\nb"), Flags{Mode: Line})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count())
}

func TestEqualByteIdentical(t *testing.T) {
	a, err := New(open(t, "a\nb\nc\n"), Flags{Mode: Line})
	require.NoError(t, err)
	b, err := New(open(t, "a\nb\nX\n"), Flags{Mode: Line})
	require.NoError(t, err)
	assert.True(t, a.Equal(0, b, 0))
	assert.True(t, a.Equal(1, b, 1))
	assert.False(t, a.Equal(2, b, 2))
}

func TestWordSequence(t *testing.T) {
	s, err := New(open(t, "hello world\nfoo\n"), Flags{Mode: Word})
	require.NoError(t, err)
	assert.True(t, s.Count() >= 3)
}

func TestDashLIgnoresLineEndingStyle(t *testing.T) {
	a, err := New(open(t, "a\nb\n"), Flags{Mode: DashL})
	require.NoError(t, err)
	b, err := New(open(t, "a\r\nb\r\n"), Flags{Mode: DashL})
	require.NoError(t, err)
	require.Equal(t, a.Count(), b.Count())
	assert.True(t, a.Equal(0, b, 0))
	assert.True(t, a.Equal(1, b, 1))
}

func TestDashBIgnoresWhitespaceAmount(t *testing.T) {
	a, err := New(open(t, "foo   bar\n"), Flags{Mode: DashB})
	require.NoError(t, err)
	b, err := New(open(t, "foo bar\n"), Flags{Mode: DashB})
	require.NoError(t, err)
	assert.True(t, a.Equal(0, b, 0))
}

func TestDashWIgnoresAllWhitespace(t *testing.T) {
	a, err := New(open(t, "foo bar\n"), Flags{Mode: DashW})
	require.NoError(t, err)
	b, err := New(open(t, "foobar\n"), Flags{Mode: DashW})
	require.NoError(t, err)
	assert.True(t, a.Equal(0, b, 0))
}
