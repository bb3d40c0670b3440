package organize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chmdznr/folder-tidy/internal/db"
	"github.com/chmdznr/folder-tidy/internal/fileutil"
	"github.com/chmdznr/folder-tidy/internal/runlog"
	"github.com/chmdznr/folder-tidy/pkg/models"
	"github.com/sirupsen/logrus"
)

// UndoOptions tunes an undo pass
type UndoOptions struct {
	// Force restores files even when their content changed after the move.
	Force bool
}

// UndoFailure describes a file that could not be restored
type UndoFailure struct {
	Path string
	Err  error
}

// UndoResult summarizes an undo pass
type UndoResult struct {
	// Run is nil when undoing from a text log.
	Run      *models.Run
	LogPath  string
	Restored int
	Failed   []UndoFailure
}

// undoItem is one move to reverse, from the journal or a run log
type undoItem struct {
	seq      int
	final    string
	original string
	checksum string
}

// UndoLast reverses the newest undoable run recorded for source.
func (o *Organizer) UndoLast(ctx context.Context, source string, opts UndoOptions) (*UndoResult, error) {
	src, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	run, err := o.db.GetLatestUndoableRun(src)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, fmt.Errorf("%w for %s", ErrNothingToUndo, src)
	}
	if err != nil {
		return nil, err
	}
	return o.undoRun(ctx, run, opts)
}

// Undo reverses the run with the given id (or unique id prefix).
func (o *Organizer) Undo(ctx context.Context, runID string, opts UndoOptions) (*UndoResult, error) {
	run, err := o.db.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return o.undoRun(ctx, run, opts)
}

func (o *Organizer) undoRun(ctx context.Context, run *models.Run, opts UndoOptions) (*UndoResult, error) {
	lock, err := lockSource(run.SourcePath)
	if err != nil {
		return nil, err
	}
	defer releaseLock(lock)

	// Another undo may have finished while we waited for the lock.
	run, err = o.db.GetRun(run.ID)
	if err != nil {
		return nil, err
	}
	if !run.Undoable() {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotUndoable, run.ID, run.Status)
	}

	records, err := o.db.GetMoves(run.ID, models.MoveMoved, models.MoveRestoreFailed)
	if err != nil {
		return nil, fmt.Errorf("load moves: %w", err)
	}
	if len(records) == 0 {
		if err := o.db.SetRunStatus(run.ID, models.RunUndone); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: run %s moved no files", ErrNothingToUndo, run.ID)
	}

	items := make([]undoItem, len(records))
	for i, rec := range records {
		items[i] = undoItem{seq: rec.Seq, final: rec.DestPath, original: rec.SourcePath, checksum: rec.Checksum}
	}

	onResult := func(item undoItem, restoredTo string, err error) error {
		if err != nil {
			return o.db.UpdateMoveStatus(run.ID, item.seq, models.MoveRestoreFailed, err.Error())
		}
		return o.db.UpdateMoveStatus(run.ID, item.seq, models.MoveRestored, "")
	}

	res, err := o.reverse(ctx, run.SourcePath, items, opts, onResult)
	if res == nil {
		return nil, err
	}
	res.Run = run

	status := models.RunUndone
	if len(res.Failed) > 0 || err != nil {
		status = models.RunPartiallyUndone
	}
	if serr := o.db.SetRunStatus(run.ID, status); serr != nil && err == nil {
		err = serr
	}
	run.Status = status

	if len(res.Failed) == 0 && err == nil {
		pruneEmptyDirs(items, run.TargetPath)
	}
	return res, err
}

// UndoFromLog reverses the MOVED entries of a text run log. Logs carry no
// checksums, so content is not verified.
func (o *Organizer) UndoFromLog(ctx context.Context, logPath string, opts UndoOptions) (*UndoResult, error) {
	parsed, err := runlog.ParseFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	if parsed.Kind != runlog.KindApply {
		return nil, fmt.Errorf("%w: %s is a %s log", runlog.ErrNotApplyLog, logPath, parsed.Kind)
	}
	moves := parsed.Moves()
	if len(moves) == 0 {
		return nil, fmt.Errorf("%w: %s lists no moved files", ErrNothingToUndo, logPath)
	}

	items := make([]undoItem, len(moves))
	for i, m := range moves {
		items[i] = undoItem{seq: i + 1, final: m.Dest, original: m.Source}
	}
	source := parsed.Source
	if source == "" {
		source = filepath.Dir(moves[0].Source)
	}

	lock, err := lockSource(source)
	if err != nil {
		return nil, err
	}
	defer releaseLock(lock)

	res, err := o.reverse(ctx, source, items, opts, nil)
	if res != nil && len(res.Failed) == 0 && err == nil {
		pruneEmptyDirs(items, logTarget(source, items))
	}
	return res, err
}

// reverse moves items back in reverse order. The caller holds the source lock.
func (o *Organizer) reverse(
	ctx context.Context,
	source string,
	items []undoItem,
	opts UndoOptions,
	onResult func(item undoItem, restoredTo string, err error) error,
) (*UndoResult, error) {
	rl, err := runlog.Create(o.logDir, runlog.KindUndo, source, o.now())
	if err != nil {
		return nil, err
	}
	res := &UndoResult{LogPath: rl.Path}
	logger := o.logger.WithFields(logrus.Fields{"source": source, "log": rl.Path})
	logger.WithField("moves", len(items)).Info("undoing moves")

	bar := newProgress(o.progress, "Restoring", len(items))
	var runErr error
	for i := len(items) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("undo interrupted with %d moves left: %w", i+1, err)
			break
		}
		item := items[i]

		restoredTo, err := o.restoreOne(item, opts)
		if err != nil {
			res.Failed = append(res.Failed, UndoFailure{Path: item.final, Err: err})
			rl.Failed(item.final, item.original, err)
			logger.WithError(err).Warnf("failed to restore %s", item.final)
		} else {
			res.Restored++
			rl.Restored(item.final, restoredTo)
			logger.WithField("to", restoredTo).Debugf("restored %s", item.final)
		}
		bar.increment()

		if onResult != nil {
			if jerr := onResult(item, restoredTo, err); jerr != nil {
				runErr = fmt.Errorf("journal update: %w", jerr)
				break
			}
		}
	}
	bar.finish()

	rl.Summary(fmt.Sprintf("Restored: %d  Failed: %d", res.Restored, len(res.Failed)))
	if err := rl.Close(); err != nil {
		logger.WithError(err).Warn("failed to close run log")
	}
	logger.WithFields(logrus.Fields{"restored": res.Restored, "failed": len(res.Failed)}).Info("undo finished")
	return res, runErr
}

func (o *Organizer) restoreOne(item undoItem, opts UndoOptions) (string, error) {
	if _, err := os.Lstat(item.final); err != nil {
		return "", fmt.Errorf("moved file missing: %w", err)
	}
	if !opts.Force && item.checksum != "" {
		sum, err := fileutil.Checksum(item.final)
		if err != nil {
			return "", err
		}
		if sum != item.checksum {
			return "", fmt.Errorf("%w: %s", ErrChecksumMismatch, item.final)
		}
	}

	if err := os.MkdirAll(filepath.Dir(item.original), 0o755); err != nil {
		return "", err
	}
	dst, err := fileutil.UniquePath(item.original, "undone ")
	if err != nil {
		return "", err
	}
	if err := fileutil.Move(item.final, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// pruneEmptyDirs removes folders left empty by an undo, from each restored
// file's former parent up to and including target. Deepest folders go first.
func pruneEmptyDirs(items []undoItem, target string) {
	if target == "" {
		return
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, item := range items {
		for dir := filepath.Dir(item.final); within(dir, target) && !seen[dir]; dir = filepath.Dir(dir) {
			seen[dir] = true
			dirs = append(dirs, dir)
			if dir == target {
				break
			}
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		_ = os.Remove(dir)
	}
}

// logTarget guesses the target folder of a logged run from its destinations:
// the top folder below source that holds them all, or their common folder
// when the target lies outside source. It returns "" when nothing is safe
// to prune.
func logTarget(source string, items []undoItem) string {
	var common string
	for _, item := range items {
		dir := filepath.Dir(item.final)
		if common == "" {
			common = dir
			continue
		}
		for !within(dir, common) {
			parent := filepath.Dir(common)
			if parent == common {
				return ""
			}
			common = parent
		}
	}
	if common == "" || within(source, common) {
		return ""
	}
	if !within(common, source) {
		return common
	}
	rel, err := filepath.Rel(source, common)
	if err != nil {
		return ""
	}
	top, _, _ := strings.Cut(rel, string(filepath.Separator))
	return filepath.Join(source, top)
}
