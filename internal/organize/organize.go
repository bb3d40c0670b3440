// Package organize plans, applies and undoes extension-based file moves.
package organize

import (
	"errors"
	"io"
	"time"

	"github.com/chmdznr/folder-tidy/internal/db"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotDirectory         = errors.New("source is not a directory")
	ErrTargetContainsSource = errors.New("target folder equals or contains the source folder")
	ErrEmptyPlan            = errors.New("nothing to apply")
	ErrLocked               = errors.New("another tidy process is working on this folder")
	ErrNothingToUndo        = errors.New("nothing to undo")
	ErrRunNotUndoable       = errors.New("run cannot be undone")
	ErrChecksumMismatch     = errors.New("file changed since it was moved")
)

// Organizer applies plans and undoes runs, journaling every move
type Organizer struct {
	db       *db.DB
	logDir   string
	progress io.Writer
	logger   logrus.FieldLogger
	now      func() time.Time
	newID    func() string
}

// OrganizerConfig holds configuration for the organizer
type OrganizerConfig struct {
	// LogDir receives the text run logs.
	LogDir string
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
	Logger   logrus.FieldLogger
}

// DefaultOrganizerConfig returns default organizer configuration
func DefaultOrganizerConfig() OrganizerConfig {
	return OrganizerConfig{
		LogDir: "logs",
	}
}

// NewOrganizer creates a new organizer instance
func NewOrganizer(journal *db.DB, config *OrganizerConfig) (*Organizer, error) {
	if journal == nil {
		return nil, errors.New("organizer requires a journal")
	}
	if config == nil {
		defaultConfig := DefaultOrganizerConfig()
		config = &defaultConfig
	}
	logDir := config.LogDir
	if logDir == "" {
		logDir = DefaultOrganizerConfig().LogDir
	}
	logger := config.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Organizer{
		db:       journal,
		logDir:   logDir,
		progress: config.Progress,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}
