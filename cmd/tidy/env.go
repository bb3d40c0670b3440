package main

import (
	"fmt"
	"os"

	"github.com/chmdznr/folder-tidy/internal/config"
	"github.com/chmdznr/folder-tidy/internal/db"
	"github.com/chmdznr/folder-tidy/internal/logging"
	"github.com/chmdznr/folder-tidy/internal/organize"
	"github.com/chmdznr/folder-tidy/internal/rules"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// env carries what every command needs
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *db.DB
}

// loadEnv reads config, applies global flag overrides and builds the logger.
func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("journal"); v != "" {
		cfg.JournalPath = v
	}
	if v := c.String("log-dir"); v != "" {
		cfg.LogDir = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// openJournal opens the journal database
func (e *env) openJournal() error {
	journal, err := db.New(e.cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %v", err)
	}
	e.db = journal
	return nil
}

func (e *env) organizer() (*organize.Organizer, error) {
	if e.db == nil {
		if err := e.openJournal(); err != nil {
			return nil, err
		}
	}
	cfg := organize.OrganizerConfig{
		LogDir: e.cfg.LogDir,
		Logger: e.logger,
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		cfg.Progress = os.Stdout
	}
	return organize.NewOrganizer(e.db, &cfg)
}

// journalFiles lists the journal and its SQLite side files so planning skips them.
func (e *env) journalFiles() []string {
	return []string{e.cfg.JournalPath, e.cfg.JournalPath + "-wal", e.cfg.JournalPath + "-shm"}
}

// loadRules loads the rule file named by flag or config, falling back to the
// built-in rules when the configured file is absent.
func (e *env) loadRules(c *cli.Context) (*rules.RuleSet, error) {
	path := c.String("rules")
	if path != "" {
		return rules.Load(path)
	}
	rs, isDefault, err := rules.LoadOrDefault(e.cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	if isDefault {
		e.logger.WithField("path", e.cfg.RulesPath).Debug("rules file not found, using built-in rules")
	}
	return rs, nil
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}
