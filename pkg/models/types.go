package models

import "time"

// Run statuses
const (
	RunApplied         = "applied"
	RunUndone          = "undone"
	RunPartiallyUndone = "partially_undone"
)

// Move statuses
const (
	MoveMoved         = "moved"
	MoveSkipped       = "skipped"
	MoveFailed        = "failed"
	MoveRestored      = "restored"
	MoveRestoreFailed = "restore_failed"
)

// Run is one apply invocation recorded in the journal
type Run struct {
	ID         string
	SourcePath string
	TargetPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	LogPath    string
	Moved      int64
	Skipped    int64
	Failed     int64
}

// Undoable reports whether the run still has moves that can be reversed
func (r *Run) Undoable() bool {
	return r.Status == RunApplied || r.Status == RunPartiallyUndone
}

// MoveRecord is a journaled move outcome
type MoveRecord struct {
	RunID      string
	Seq        int
	SourcePath string
	DestPath   string
	Rule       string
	Size       int64
	Checksum   string
	Status     string
	Error      string
	UpdatedAt  time.Time
}
