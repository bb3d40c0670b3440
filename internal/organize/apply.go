package organize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chmdznr/folder-tidy/internal/fileutil"
	"github.com/chmdznr/folder-tidy/internal/runlog"
	"github.com/chmdznr/folder-tidy/pkg/models"
	"github.com/sirupsen/logrus"
)

// Apply executes plan. Per-file failures are journaled and counted; the
// returned error is reserved for problems that stop the whole run. On
// cancellation the partially applied run is still returned.
func (o *Organizer) Apply(ctx context.Context, plan *models.Plan) (*models.Run, *models.Stats, error) {
	if plan == nil || len(plan.Moves) == 0 {
		return nil, nil, ErrEmptyPlan
	}

	lock, err := acquireLock(plan.Source)
	if err != nil {
		return nil, nil, err
	}
	defer releaseLock(lock)

	run := &models.Run{
		ID:         o.newID(),
		SourcePath: plan.Source,
		TargetPath: plan.Target,
		StartedAt:  o.now(),
		Status:     models.RunApplied,
	}

	rl, err := runlog.Create(o.logDir, runlog.KindApply, plan.Source, run.StartedAt)
	if err != nil {
		return nil, nil, err
	}
	run.LogPath = rl.Path

	if err := o.db.CreateRun(run); err != nil {
		rl.Close()
		return nil, nil, err
	}

	logger := o.logger.WithFields(logrus.Fields{"run": run.ID, "source": run.SourcePath})
	logger.WithField("moves", len(plan.Moves)).Info("applying plan")

	stats := &models.Stats{ScannedFiles: int64(plan.Scanned)}
	bar := newProgress(o.progress, "Moving", len(plan.Moves))

	var runErr error
	for i, move := range plan.Moves {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("apply interrupted after %d of %d moves: %w", i, len(plan.Moves), err)
			break
		}

		rec, moveErr := o.applyOne(run.ID, i+1, move)
		switch rec.Status {
		case models.MoveMoved:
			stats.MovedFiles++
			stats.MovedSize += rec.Size
			rl.Moved(rec.SourcePath, rec.DestPath)
			logger.WithFields(logrus.Fields{"rule": rec.Rule, "to": rec.DestPath}).Debugf("moved %s", rec.SourcePath)
		case models.MoveSkipped:
			stats.SkippedFiles++
			rl.Skipped(rec.SourcePath)
			logger.WithField("reason", rec.Error).Debugf("skipped %s", rec.SourcePath)
		default:
			stats.FailedFiles++
			rl.Failed(rec.SourcePath, rec.DestPath, moveErr)
			logger.WithError(moveErr).Warnf("failed to move %s", rec.SourcePath)
		}
		bar.increment()

		if err := o.db.RecordMove(rec); err != nil {
			// The run log still holds the entry, so undo-from-log can recover it.
			runErr = err
			break
		}
	}
	bar.finish()

	rl.Summary(summaryLine(stats))
	if err := rl.Close(); err != nil {
		logger.WithError(err).Warn("failed to close run log")
	}

	run.FinishedAt = o.now()
	run.Moved = stats.MovedFiles
	run.Skipped = stats.SkippedFiles
	run.Failed = stats.FailedFiles
	if err := o.db.FinishRun(run); err != nil && runErr == nil {
		runErr = err
	}

	logger.WithFields(logrus.Fields{
		"moved":   stats.MovedFiles,
		"skipped": stats.SkippedFiles,
		"failed":  stats.FailedFiles,
	}).Info("apply finished")
	return run, stats, runErr
}

// applyOne performs a single planned move and describes the outcome. The
// returned error is non-nil only for failed moves.
func (o *Organizer) applyOne(runID string, seq int, move models.PlannedMove) (*models.MoveRecord, error) {
	rec := &models.MoveRecord{
		RunID:      runID,
		Seq:        seq,
		SourcePath: move.Source,
		DestPath:   move.Destination,
		Rule:       move.Rule,
		Size:       move.Size,
		Status:     models.MoveFailed,
	}
	fail := func(err error) (*models.MoveRecord, error) {
		rec.Error = err.Error()
		rec.UpdatedAt = o.now()
		return rec, err
	}

	if _, err := os.Lstat(move.Source); errors.Is(err, os.ErrNotExist) {
		rec.Status = models.MoveSkipped
		rec.Error = "source no longer exists"
		rec.UpdatedAt = o.now()
		return rec, nil
	}
	if fileutil.SamePath(move.Source, move.Destination) {
		rec.Status = models.MoveSkipped
		rec.Error = "already at destination"
		rec.UpdatedAt = o.now()
		return rec, nil
	}

	if err := os.MkdirAll(filepath.Dir(move.Destination), 0o755); err != nil {
		return fail(err)
	}
	dst, err := fileutil.UniquePath(move.Destination, "")
	if err != nil {
		return fail(err)
	}
	rec.DestPath = dst

	sum, err := fileutil.Checksum(move.Source)
	if err != nil {
		return fail(err)
	}
	if err := fileutil.Move(move.Source, dst); err != nil {
		return fail(err)
	}

	rec.Checksum = sum
	rec.Status = models.MoveMoved
	rec.UpdatedAt = o.now()
	return rec, nil
}

func summaryLine(stats *models.Stats) string {
	return fmt.Sprintf("Moved: %d  Skipped: %d  Failed: %d", stats.MovedFiles, stats.SkippedFiles, stats.FailedFiles)
}
