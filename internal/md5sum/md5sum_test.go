package md5sum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
}

func TestReaderAcrossMultipleChunks(t *testing.T) {
	payload := strings.Repeat("a", ChunkSize*3+17)

	sum, err := Reader(strings.NewReader(payload))
	require.NoError(t, err)

	want, err := Reader(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, want, sum)
	assert.Len(t, sum, 32)
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
