package organize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chmdznr/folder-tidy/internal/rules"
	"github.com/chmdznr/folder-tidy/pkg/models"
	"github.com/sirupsen/logrus"
)

// PlanOptions tunes a planning pass
type PlanOptions struct {
	// ExcludePaths are files or folders that are never planned, typically
	// the journal database and the log directory.
	ExcludePaths []string
	Logger       logrus.FieldLogger
}

// Plan walks source and computes the moves the rule set asks for. It never
// touches the filesystem beyond reading it.
func Plan(ctx context.Context, source string, rs *rules.RuleSet, opts PlanOptions) (*models.Plan, error) {
	if rs == nil {
		return nil, errors.New("plan requires a rule set")
	}
	src, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, src)
	}

	target := rs.ResolveTarget(src)
	if within(src, target) {
		return nil, fmt.Errorf("%w: %s", ErrTargetContainsSource, target)
	}

	excluded := []string{lockPath(src)}
	for _, p := range opts.ExcludePaths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			excluded = append(excluded, abs)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	plan := &models.Plan{Source: src, Target: target}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == src {
				return walkErr
			}
			logger.WithError(walkErr).WithField("path", path).Warn("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != src && (within(path, target) || isExcluded(path, excluded)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		plan.Scanned++
		if isExcluded(path, excluded) || rs.Excluded(d.Name()) {
			plan.Excluded++
			return nil
		}

		file := models.File{Path: path, Ext: rules.Ext(d.Name())}
		if fi, err := d.Info(); err == nil {
			file.Size = fi.Size()
			file.ModTime = fi.ModTime()
		}

		rule, ok := rs.Match(d.Name())
		if !ok {
			plan.Unmatched++
			plan.UnmatchedFiles = append(plan.UnmatchedFiles, file)
			return nil
		}
		plan.Moves = append(plan.Moves, models.PlannedMove{
			Source:      path,
			Destination: filepath.Join(target, rule.Action.MoveTo, d.Name()),
			Rule:        rule.Name,
			Size:        file.Size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", src, err)
	}

	logger.WithFields(logrus.Fields{
		"source":    plan.Source,
		"target":    plan.Target,
		"scanned":   plan.Scanned,
		"planned":   len(plan.Moves),
		"unmatched": plan.Unmatched,
		"excluded":  plan.Excluded,
	}).Debug("plan computed")
	return plan, nil
}

// Plan computes a plan that also excludes the organizer's own log directory.
func (o *Organizer) Plan(ctx context.Context, source string, rs *rules.RuleSet, extraExcludes ...string) (*models.Plan, error) {
	excludes := append([]string{o.logDir}, extraExcludes...)
	return Plan(ctx, source, rs, PlanOptions{ExcludePaths: excludes, Logger: o.logger})
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func isExcluded(path string, excluded []string) bool {
	for _, e := range excluded {
		if within(path, e) {
			return true
		}
	}
	return false
}
