package readfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestMmapBackendBasicRead(t *testing.T) {
	p := writeTemp(t, "hello\nworld\n")
	rf, err := Open(p, 1<<20, 4096)
	require.NoError(t, err)
	defer rf.Close()

	assert.EqualValues(t, 12, rf.Size())
	buf := make([]byte, 5)
	n := rf.ReadInto(buf)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
	assert.EqualValues(t, 5, rf.Tell())
}

func TestSlidingBufferBackendBasicRead(t *testing.T) {
	p := writeTemp(t, "hello\nworld\n")
	rf, err := Open(p, 0, 4) // force sliding buffer, small window
	require.NoError(t, err)
	defer rf.Close()

	buf := make([]byte, 12)
	n := rf.ReadInto(buf)
	assert.Equal(t, 12, n)
	assert.Equal(t, "hello\nworld\n", string(buf))
}

func TestCopyUntilByte(t *testing.T) {
	p := writeTemp(t, "line one\nline two\n")
	rf, err := Open(p, 1<<20, 4096)
	require.NoError(t, err)
	defer rf.Close()

	buf := make([]byte, 100)
	n := rf.CopyUntilByte(buf, '\n')
	assert.Equal(t, "line one\n", string(buf[:n]))
	n = rf.CopyUntilByte(buf, '\n')
	assert.Equal(t, "line two\n", string(buf[:n]))
}

func TestTextCopyCrLf(t *testing.T) {
	p := writeTemp(t, "a\r\nb\r\n")
	rf, err := Open(p, 1<<20, 4096)
	require.NoError(t, err)
	defer rf.Close()

	dst := make([]byte, 10)
	w := rf.TextCopy(dst, 6, CrLf)
	assert.Equal(t, "a\nb\n", string(dst[:w]))
}

func TestMemcmpEqual(t *testing.T) {
	p1 := writeTemp(t, "abcdef")
	p2 := writeTemp(t, "abcxyz")
	r1, err := Open(p1, 1<<20, 4096)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := Open(p2, 1<<20, 4096)
	require.NoError(t, err)
	defer r2.Close()

	assert.Equal(t, 0, r1.Memcmp(r2, 3))
	assert.NotEqual(t, 0, r1.Memcmp(r2, 6))
}
