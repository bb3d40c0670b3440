package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name string
		stem string
		ext  string
	}{
		{"photo.jpg", "photo", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".env", ".env", ""},
		{"README", "README", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, ext := SplitName(tt.name)
			assert.Equal(t, tt.stem, stem)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")

	got, err := UniquePath(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	writeFile(t, path, "1")
	got, err = UniquePath(path, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a (1).jpg"), got)

	writeFile(t, got, "2")
	got, err = UniquePath(path, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a (2).jpg"), got)

	got, err = UniquePath(path, "undone ")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a (undone 1).jpg"), got)
}

func TestChecksum(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "same")
	writeFile(t, b, "same")

	sa, err := Checksum(a)
	require.NoError(t, err)
	sb, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Len(t, sa, 64)

	writeFile(t, b, "different")
	sb, err = Checksum(b)
	require.NoError(t, err)
	assert.NotEqual(t, sa, sb)
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	writeFile(t, src, "payload")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	require.NoError(t, Move(src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCopyFileVerified_RefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	require.Error(t, CopyFileVerified(src, dst, 0o644))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	writeFile(t, a, "x")
	assert.True(t, SamePath(a, filepath.Join(dir, ".", "a")))
	assert.False(t, SamePath(a, filepath.Join(dir, "missing")))
}
