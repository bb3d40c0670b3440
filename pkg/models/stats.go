package models

// Stats represents run statistics
type Stats struct {
	// ScannedFiles is filled by a planned apply; the journal does not keep it.
	ScannedFiles int64
	// RecordedFiles counts the move records journaled for a run.
	RecordedFiles int64
	MovedFiles    int64
	MovedSize     int64
	SkippedFiles  int64
	FailedFiles   int64
	RestoredFiles int64
	RestoreFailed int64
}
