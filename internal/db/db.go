package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chmdznr/folder-tidy/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run id is unknown to the journal
var ErrRunNotFound = errors.New("run not found")

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB represents the move journal
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the journal database at path
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A single connection keeps PRAGMAs and writes on one handle.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize journal: %w", err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			target_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			log_path TEXT,
			moved INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS moves (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			source_path TEXT NOT NULL,
			dest_path TEXT NOT NULL,
			rule TEXT,
			size INTEGER DEFAULT 0,
			checksum TEXT,
			status TEXT NOT NULL,
			error TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_path, started_at);
		CREATE INDEX IF NOT EXISTS idx_moves_status ON moves(run_id, status);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// CreateRun inserts the header for a new apply run
func (db *DB) CreateRun(run *models.Run) error {
	if run.Status == "" {
		run.Status = models.RunApplied
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, source_path, target_path, started_at, status, log_path)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.SourcePath,
		run.TargetPath,
		run.StartedAt.UTC().Format(timeLayout),
		run.Status,
		run.LogPath,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and finish time of a run
func (db *DB) FinishRun(run *models.Run) error {
	_, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, moved = ?, skipped = ?, failed = ?, status = ?
		WHERE id = ?
	`,
		run.FinishedAt.UTC().Format(timeLayout),
		run.Moved,
		run.Skipped,
		run.Failed,
		run.Status,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// SetRunStatus updates the status of a run
func (db *DB) SetRunStatus(runID, status string) error {
	res, err := db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, source_path, target_path, started_at, finished_at, status, log_path, moved, skipped, failed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		startedAt  string
		finishedAt sql.NullString
		logPath    sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.SourcePath,
		&run.TargetPath,
		&startedAt,
		&finishedAt,
		&run.Status,
		&logPath,
		&run.Moved,
		&run.Skipped,
		&run.Failed,
	); err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt.Valid {
		run.FinishedAt, _ = time.Parse(timeLayout, finishedAt.String)
	}
	run.LogPath = logPath.String
	return &run, nil
}

// GetRun retrieves a run by id. A unique id prefix is accepted as well.
func (db *DB) GetRun(id string) (*models.Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, stripLikeWildcards(id)+"%", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// GetLatestUndoableRun returns the newest run for source that can still be
// undone and still has files out of place
func (db *DB) GetLatestUndoableRun(source string) (*models.Run, error) {
	row := db.QueryRow(`
		SELECT `+runColumns+`
		FROM runs
		WHERE source_path = ? AND status IN (?, ?)
		  AND EXISTS (
			SELECT 1 FROM moves
			WHERE moves.run_id = runs.id AND moves.status IN (?, ?)
		  )
		ORDER BY started_at DESC
		LIMIT 1
	`, source, models.RunApplied, models.RunPartiallyUndone, models.MoveMoved, models.MoveRestoreFailed)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no undoable run for %s", ErrRunNotFound, source)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first
func (db *DB) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RecordMove saves a move outcome
func (db *DB) RecordMove(rec *models.MoveRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO moves (run_id, seq, source_path, dest_path, rule, size, checksum, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Seq,
		rec.SourcePath,
		rec.DestPath,
		rec.Rule,
		rec.Size,
		rec.Checksum,
		rec.Status,
		rec.Error,
		rec.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record move %s: %w", rec.SourcePath, err)
	}
	return nil
}

// UpdateMoveStatus updates the status (and error text) of a journaled move
func (db *DB) UpdateMoveStatus(runID string, seq int, status, errText string) error {
	_, err := db.Exec(`
		UPDATE moves
		SET status = ?, error = ?, updated_at = ?
		WHERE run_id = ? AND seq = ?
	`, status, errText, time.Now().UTC().Format(timeLayout), runID, seq)
	return err
}

// GetMoves retrieves the moves of a run in sequence order, optionally
// filtered by status
func (db *DB) GetMoves(runID string, statuses ...string) ([]models.MoveRecord, error) {
	query := `
		SELECT run_id, seq, source_path, dest_path, COALESCE(rule, ''), size,
			COALESCE(checksum, ''), status, COALESCE(error, ''), updated_at
		FROM moves
		WHERE run_id = ?`
	args := []any{runID}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []models.MoveRecord
	for rows.Next() {
		var rec models.MoveRecord
		var updatedAt string
		if err := rows.Scan(
			&rec.RunID,
			&rec.Seq,
			&rec.SourcePath,
			&rec.DestPath,
			&rec.Rule,
			&rec.Size,
			&rec.Checksum,
			&rec.Status,
			&rec.Error,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		moves = append(moves, rec)
	}
	return moves, rows.Err()
}

// GetStats returns aggregate move statistics for a run
func (db *DB) GetStats(runID string) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*) as recorded_files,
			COUNT(CASE WHEN status = 'moved' THEN 1 END) as moved_files,
			COALESCE(SUM(CASE WHEN status = 'moved' THEN size ELSE 0 END), 0) as moved_size,
			COUNT(CASE WHEN status = 'skipped' THEN 1 END) as skipped_files,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_files,
			COUNT(CASE WHEN status = 'restored' THEN 1 END) as restored_files,
			COUNT(CASE WHEN status = 'restore_failed' THEN 1 END) as restore_failed
		FROM moves
		WHERE run_id = ?
	`, runID).Scan(
		&stats.RecordedFiles,
		&stats.MovedFiles,
		&stats.MovedSize,
		&stats.SkippedFiles,
		&stats.FailedFiles,
		&stats.RestoredFiles,
		&stats.RestoreFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %v", err)
	}
	return &stats, nil
}

func stripLikeWildcards(s string) string {
	r := strings.NewReplacer(`%`, ``, `_`, ``)
	return r.Replace(s)
}
