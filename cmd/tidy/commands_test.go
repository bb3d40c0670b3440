package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/chmdznr/folder-tidy/internal/archive"
	"github.com/chmdznr/folder-tidy/internal/db"
	"github.com/chmdznr/folder-tidy/internal/rules"
	"github.com/chmdznr/folder-tidy/internal/runlog"
	"github.com/chmdznr/folder-tidy/pkg/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workspace is a throwaway source folder with its own config, journal,
// logs and rules.
type workspace struct {
	root    string
	src     string
	config  string
	journal string
	logDir  string
	rules   string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	color.NoColor = true
	t.Setenv("TIDY_ARCHIVE_ACCESS_KEY", "")
	t.Setenv("TIDY_ARCHIVE_SECRET_KEY", "")

	root := t.TempDir()
	w := &workspace{
		root:    root,
		src:     filepath.Join(root, "Downloads"),
		config:  filepath.Join(root, "tidy.toml"),
		journal: filepath.Join(root, "state", "tidy.db"),
		logDir:  filepath.Join(root, "logs"),
		rules:   filepath.Join(root, "rules.yaml"),
	}
	require.NoError(t, os.MkdirAll(w.src, 0o755))
	w.writeConfig(t)
	return w
}

func (w *workspace) writeConfig(t *testing.T) {
	t.Helper()
	cfg := fmt.Sprintf("journal_path = %q\nlog_dir = %q\nrules_path = %q\nlog_level = \"error\"\n",
		w.journal, w.logDir, w.rules)
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o644))
}

func (w *workspace) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(w.src, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (w *workspace) organized(parts ...string) string {
	return filepath.Join(append([]string{w.src, rules.DefaultTarget}, parts...)...)
}

// run executes the tidy app with args and returns what it printed.
func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"tidy", "--config", w.config}, args...))
	return out.String(), err
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := w.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (w *workspace) runs(t *testing.T) []models.Run {
	t.Helper()
	journal, err := db.New(w.journal)
	require.NoError(t, err)
	defer journal.Close()
	runs, err := journal.ListRuns(10)
	require.NoError(t, err)
	return runs
}

func fileContent(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPreview_ListsMovesWithoutTouchingFiles(t *testing.T) {
	w := newWorkspace(t)
	a := w.write(t, "a.jpg", "a")
	w.write(t, "nested/b.pdf", "b")
	w.write(t, "notes.xyz", "?")

	out := w.mustRun(t, "preview", "--source", w.src, "--show-unmatched")
	assert.Contains(t, out, "Files without a matching rule")
	assert.Contains(t, out, "notes.xyz")
	assert.Contains(t, out, filepath.Join("Images", "a.jpg"))
	assert.Contains(t, out, filepath.Join("PDFs", "b.pdf"))
	assert.Contains(t, out, "Images: 1 / PDFs: 1")
	assert.Contains(t, out, `run "tidy apply"`)

	assert.Equal(t, "a", fileContent(t, a))
	assert.NoDirExists(t, w.organized())
	assert.Empty(t, w.runs(t))
}

func TestPreview_NothingToMove(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "notes.xyz", "?")

	out := w.mustRun(t, "preview", "--source", w.src)
	assert.Contains(t, out, "No files to move for the current rules.")
}

func TestPreview_RequiresSource(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "preview")
	assert.ErrorContains(t, err, "source")
}

func TestApply_SkipsJournalAndLogsInsideSource(t *testing.T) {
	w := newWorkspace(t)
	w.journal = filepath.Join(w.src, "tidy.db")
	w.logDir = filepath.Join(w.src, "logs")
	w.writeConfig(t)
	require.NoError(t, os.WriteFile(w.rules, []byte(`
rules:
  - name: Images
    match: {ext: [.jpg]}
    action: {move_to: Images}
  - name: Docs
    match: {ext: [.txt]}
    action: {move_to: Docs}
  - name: Data
    match: {ext: [.db, .db-wal, .db-shm]}
    action: {move_to: Data}
`), 0o644))

	w.write(t, "a.jpg", "a")
	w.write(t, "notes.txt", "n")
	out := w.mustRun(t, "apply", "--source", w.src, "--yes")
	assert.Contains(t, out, "All done!")
	assert.Contains(t, out, "Moved: 2")

	// The second run sees the first run's log and the journal in the source.
	w.write(t, "c.jpg", "c")
	out = w.mustRun(t, "apply", "--source", w.src, "--yes")
	assert.Contains(t, out, "Moved: 1")

	assert.FileExists(t, w.journal)
	assert.NoDirExists(t, w.organized("Data"))
	docs, err := os.ReadDir(w.organized("Docs"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Name())

	logs, err := runlog.List(w.logDir)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestApply_NothingToMove(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "apply", "--source", w.src, "--yes")
	assert.Contains(t, out, "No files to move for the current rules.")
	assert.Empty(t, w.runs(t))
}

func TestApply_OpenShowsTargetAndLog(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "a.jpg", "a")

	var opened []string
	orig := openPath
	openPath = func(p string) error {
		opened = append(opened, p)
		return nil
	}
	t.Cleanup(func() { openPath = orig })

	w.mustRun(t, "apply", "--source", w.src, "--yes", "--open")
	require.Len(t, opened, 2)
	assert.Equal(t, w.organized(), opened[0])
	assert.Equal(t, filepath.Join(w.logDir, filepath.Base(opened[1])), opened[1])
}

func TestApply_OpenFailureIsOnlyReported(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "a.jpg", "a")

	orig := openPath
	openPath = func(string) error { return fmt.Errorf("no opener") }
	t.Cleanup(func() { openPath = orig })

	out := w.mustRun(t, "apply", "--source", w.src, "--yes", "--open")
	assert.Contains(t, out, "Could not open")
	assert.FileExists(t, w.organized("Images", "a.jpg"))
}

func TestUndo_BySourceNewestFirst(t *testing.T) {
	w := newWorkspace(t)
	a := w.write(t, "a.jpg", "a")
	w.mustRun(t, "apply", "--source", w.src, "--yes")
	b := w.write(t, "b.pdf", "b")
	w.mustRun(t, "apply", "--source", w.src, "--yes")

	out := w.mustRun(t, "undo", "--source", w.src)
	assert.Contains(t, out, "All changes were undone.")
	assert.Contains(t, out, "Restored: 1")
	assert.Equal(t, "b", fileContent(t, b))
	assert.NoFileExists(t, a)

	w.mustRun(t, "undo", "--source", w.src)
	assert.Equal(t, "a", fileContent(t, a))
	assert.NoDirExists(t, w.organized())

	out = w.mustRun(t, "undo", "--source", w.src)
	assert.Contains(t, out, "Nothing to undo.")
}

func TestUndo_ByRunAndHistory(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "history")
	assert.Contains(t, out, "No runs recorded yet.")

	a := w.write(t, "a.jpg", "a")
	w.mustRun(t, "apply", "--source", w.src, "--yes")
	runs := w.runs(t)
	require.Len(t, runs, 1)
	id := runs[0].ID

	out = w.mustRun(t, "history")
	assert.Contains(t, out, shortID(id))
	assert.Contains(t, out, models.RunApplied)

	out = w.mustRun(t, "show", "--run", shortID(id))
	assert.Contains(t, out, id)
	assert.Contains(t, out, "1 moved")
	assert.Contains(t, out, w.organized("Images", "a.jpg"))

	require.NoError(t, os.WriteFile(w.organized("Images", "a.jpg"), []byte("edited"), 0o644))
	out = w.mustRun(t, "undo", "--run", id)
	assert.Contains(t, out, "Some changes could not be undone.")
	assert.Contains(t, out, "rerun with --force")
	assert.NoFileExists(t, a)

	out = w.mustRun(t, "undo", "--run", id, "--force")
	assert.Contains(t, out, "All changes were undone.")
	assert.Equal(t, "edited", fileContent(t, a))

	out = w.mustRun(t, "history")
	assert.Contains(t, out, models.RunUndone)

	_, err := w.run(t, "undo", "--run", id)
	assert.Error(t, err)
}

func TestUndo_FromLog(t *testing.T) {
	w := newWorkspace(t)
	a := w.write(t, "a.jpg", "a")
	w.mustRun(t, "apply", "--source", w.src, "--yes")

	logs, err := runlog.List(w.logDir)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	out := w.mustRun(t, "undo", "--from-log", logs[0])
	assert.Contains(t, out, "All changes were undone.")
	assert.Equal(t, "a", fileContent(t, a))
	assert.NoDirExists(t, w.organized())
}

func TestShow_UnknownRun(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "show", "--run", "nope")
	assert.ErrorIs(t, err, db.ErrRunNotFound)
}

func TestRulesInitAndCheck(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "rules", "init")
	assert.Contains(t, out, "Rules written to "+w.rules)
	rs, err := rules.Load(w.rules)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, len(rules.Default().Rules))

	_, err = w.run(t, "rules", "init")
	assert.ErrorContains(t, err, "already exists")
	w.mustRun(t, "rules", "init", "--force")

	out = w.mustRun(t, "rules", "check")
	assert.Contains(t, out, "Rules are valid.")
	assert.Contains(t, out, "Images")
	assert.Contains(t, out, "Target: "+rules.DefaultTarget)

	bad := filepath.Join(w.root, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - name: X\n    match: {ext: []}\n    action: {move_to: X}\n"), 0o644))
	_, err = w.run(t, "rules", "check", "--rules", bad)
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
}

func TestLogsListAndPush(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "logs", "list")
	assert.Contains(t, out, "No run logs in")

	w.write(t, "a.jpg", "a")
	w.mustRun(t, "apply", "--source", w.src, "--yes")
	out = w.mustRun(t, "logs", "list")
	assert.Contains(t, out, "arranger_")

	_, err := w.run(t, "logs", "push")
	assert.ErrorIs(t, err, archive.ErrNotConfigured)
}

func TestVersion(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "version")
	assert.Contains(t, out, "Version:")
}
