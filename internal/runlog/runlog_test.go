package runlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWriteParse(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 10, 18, 10, 15, 0, 0, time.Local)

	l, err := Create(dir, KindApply, "/src", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "arranger_20251018_101500.txt"), l.Path)

	l.Moved("/src/a.jpg", "/src/Organized/Images/a.jpg")
	l.Skipped("/src/b.pdf")
	l.Failed("/src/c.mp4", "/src/Organized/Videos/c.mp4", &os.PathError{Op: "rename", Path: "/src/c.mp4", Err: errors.New("denied")})
	l.Moved("/src/my file.png", "/src/Organized/Images/my file (1).png")
	l.Summary("Moved: 2  Skipped: 1  Failed: 1")
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[Apply] 20251018_101500\nSource: /src\n\n"))
	assert.Contains(t, string(raw), "FAILED\t/src/c.mp4 -> /src/Organized/Videos/c.mp4 (PathError: rename /src/c.mp4: denied)")

	p, err := ParseFile(l.Path)
	require.NoError(t, err)
	assert.Equal(t, KindApply, p.Kind)
	assert.Equal(t, "20251018_101500", p.Stamp)
	assert.Equal(t, "/src", p.Source)
	require.Len(t, p.Entries, 4)
	assert.Equal(t, "PathError: rename /src/c.mp4: denied", p.Entries[2].Detail)
	assert.Equal(t, "/src/Organized/Videos/c.mp4", p.Entries[2].Dest)

	moves := p.Moves()
	require.Len(t, moves, 2)
	assert.Equal(t, "/src/my file.png", moves[1].Source)
	assert.Equal(t, "/src/Organized/Images/my file (1).png", moves[1].Dest)
}

func TestParse_ArrowInFileName(t *testing.T) {
	dir := t.TempDir()
	l, err := Create(dir, KindApply, "/src", time.Now())
	require.NoError(t, err)
	l.Moved("/src/a -> b.jpg", "/src/Organized/Images/a -> b.jpg")
	l.Moved("/src/x -> y.pdf", "/src/Organized/PDFs/x -> y (2).pdf")
	l.Failed("/src/c -> d.mp4", "/src/Organized/Videos/c -> d.mp4", errors.New("disk full"))
	require.NoError(t, l.Close())

	undo, err := Create(dir, KindUndo, "/src", time.Now())
	require.NoError(t, err)
	undo.Restored("/src/Organized/Images/a -> b.jpg", "/src/a -> b (undone 1).jpg")
	require.NoError(t, undo.Close())

	p, err := ParseFile(l.Path)
	require.NoError(t, err)
	moves := p.Moves()
	require.Len(t, moves, 2)
	assert.Equal(t, "/src/a -> b.jpg", moves[0].Source)
	assert.Equal(t, "/src/Organized/Images/a -> b.jpg", moves[0].Dest)
	assert.Equal(t, "/src/x -> y.pdf", moves[1].Source)
	assert.Equal(t, "/src/Organized/PDFs/x -> y (2).pdf", moves[1].Dest)

	failed := p.Entries[2]
	assert.Equal(t, "/src/c -> d.mp4", failed.Source)
	assert.Equal(t, "/src/Organized/Videos/c -> d.mp4", failed.Dest)
	assert.Equal(t, "errorString: disk full", failed.Detail)

	p, err = ParseFile(undo.Path)
	require.NoError(t, err)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, "/src/Organized/Images/a -> b.jpg", p.Entries[0].Source)
	assert.Equal(t, "/src/a -> b (undone 1).jpg", p.Entries[0].Dest)
}

func TestSplitArrow_FallsBackToExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "renamed -> by hand.txt")
	require.NoError(t, os.WriteFile(dst, nil, 0o644))

	src, got, ok := splitArrow("/src/old -> name.txt -> " + dst)
	require.True(t, ok)
	assert.Equal(t, "/src/old -> name.txt", src)
	assert.Equal(t, dst, got)
}

func TestCreate_AvoidsNameClash(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 10, 18, 10, 15, 0, 0, time.Local)

	first, err := Create(dir, KindApply, "/src", now)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Create(dir, KindApply, "/src", now)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, filepath.Join(dir, "arranger_20251018_101500_1.txt"), second.Path)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("MOVED\ta -> b\n"))
	assert.Error(t, err, "missing header")

	_, err = Parse(strings.NewReader("[Apply] x\nMOVED\tno-arrow\n"))
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	newer := old.Add(time.Hour)

	a, err := Create(dir, KindApply, "/src", old)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, os.Chtimes(a.Path, old, old))

	u, err := Create(dir, KindUndo, "/src", newer)
	require.NoError(t, err)
	require.NoError(t, u.Close())
	require.NoError(t, os.Chtimes(u.Path, newer, newer))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	logs, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{u.Path, a.Path}, logs)

	logs, err = List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, logs)
}
