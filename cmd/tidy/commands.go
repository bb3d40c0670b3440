package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chmdznr/folder-tidy/internal/archive"
	"github.com/chmdznr/folder-tidy/internal/organize"
	"github.com/chmdznr/folder-tidy/internal/rules"
	"github.com/chmdznr/folder-tidy/internal/runlog"
	"github.com/chmdznr/folder-tidy/pkg/models"
	"github.com/chmdznr/folder-tidy/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/urfave/cli/v2"
)

// openPath opens a file or folder with the platform's default application.
var openPath = browser.OpenFile

// maxListed caps the failures echoed after an undo; the run log has them all.
const maxListed = 10

// previewMoves prints the planned moves for a folder without executing them.
func previewMoves(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	plan, err := planFor(c, e)
	if err != nil {
		return err
	}
	if c.Bool("show-unmatched") && len(plan.UnmatchedFiles) > 0 {
		rows := make([][]string, 0, len(plan.UnmatchedFiles))
		for _, f := range plan.UnmatchedFiles {
			ext := f.Ext
			if ext == "" {
				ext = "(none)"
			}
			rows = append(rows, []string{relTo(plan.Source, f.Path), ext, utils.FormatSize(f.Size)})
		}
		fmt.Fprintln(w, headerText("Files without a matching rule"))
		fmt.Fprintln(w, renderTable([]string{"File", "Extension", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}
	if len(plan.Moves) == 0 {
		fmt.Fprintln(w, "No files to move for the current rules.")
		return nil
	}

	rows := make([][]string, 0, len(plan.Moves))
	for _, m := range plan.Moves {
		rows = append(rows, []string{m.Rule, relTo(plan.Source, m.Source), relTo(plan.Target, m.Destination), utils.FormatSize(m.Size)})
	}
	fmt.Fprintln(w, renderTable([]string{"Rule", "File", "Destination", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	printPlanSummary(w, plan)
	fmt.Fprintln(w, `If you want to proceed, run "tidy apply" with the same folder.`)
	return nil
}

// applyMoves plans and then applies the moves for a folder.
//
// Unless --yes is given the user confirms with a single key press. Per-file
// failures do not fail the command; they are counted and written to the run
// log.
func applyMoves(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	rs, err := e.loadRules(c)
	if err != nil {
		return err
	}
	org, err := e.organizer()
	if err != nil {
		return err
	}
	plan, err := org.Plan(c.Context, c.String("source"), rs, e.journalFiles()...)
	if err != nil {
		return err
	}
	if len(plan.Moves) == 0 {
		fmt.Fprintln(w, "No files to move for the current rules.")
		return nil
	}
	printPlanSummary(w, plan)

	if !c.Bool("yes") {
		ok, err := confirm(w, fmt.Sprintf("Move %d files?", len(plan.Moves)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "Nothing was moved.")
			return nil
		}
	}

	run, stats, err := org.Apply(c.Context, plan)
	if run != nil {
		fmt.Fprintln(w, headerText("All done!"))
		fmt.Fprintf(w, "Organized into: %s\n", linkText("%s", run.TargetPath))
		fmt.Fprintf(w, "Log:            %s\n", linkText("%s", run.LogPath))
		fmt.Fprintf(w, "Run:            %s\n", run.ID)
		fmt.Fprintf(w, "Moved: %s   Skipped: %s   Failed: %s   (%s)\n",
			successText("%d", stats.MovedFiles),
			warnText("%d", stats.SkippedFiles),
			errorText("%d", stats.FailedFiles),
			utils.FormatSize(stats.MovedSize))
		if stats.MovedFiles > 0 {
			fmt.Fprintln(w, `If you don't like these changes, run "tidy undo".`)
		}
		if c.Bool("open") {
			openPaths(w, e, run.TargetPath, run.LogPath)
		}
	}
	return err
}

// openPaths hands each path to the desktop's default opener. Failures are
// reported but do not fail the command.
func openPaths(w io.Writer, e *env, paths ...string) {
	for _, p := range paths {
		if err := openPath(p); err != nil {
			e.logger.WithError(err).WithField("path", p).Warn("failed to open")
			fmt.Fprintln(w, warnText("Could not open %s: %v", p, err))
		}
	}
}

// undoMoves reverses a run: the latest for --source, a specific --run, or
// the MOVED lines of a run log given with --from-log.
func undoMoves(c *cli.Context) error {
	w := c.App.Writer
	source, runID, fromLog := c.String("source"), c.String("run"), c.String("from-log")
	set := 0
	for _, v := range []string{source, runID, fromLog} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of --source, --run or --from-log is required")
	}

	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	org, err := e.organizer()
	if err != nil {
		return err
	}

	opts := organize.UndoOptions{Force: c.Bool("force")}
	var res *organize.UndoResult
	switch {
	case fromLog != "":
		res, err = org.UndoFromLog(c.Context, fromLog, opts)
	case runID != "":
		res, err = org.Undo(c.Context, runID, opts)
	default:
		res, err = org.UndoLast(c.Context, source, opts)
	}
	if errors.Is(err, organize.ErrNothingToUndo) {
		fmt.Fprintln(w, "Nothing to undo.")
		return nil
	}
	if res == nil {
		return err
	}

	if len(res.Failed) == 0 {
		fmt.Fprintln(w, headerText("All changes were undone."))
	} else {
		fmt.Fprintln(w, warnText("Some changes could not be undone."))
	}
	fmt.Fprintf(w, "Restored: %s   Failed: %s\n", successText("%d", res.Restored), errorText("%d", len(res.Failed)))
	if len(res.Failed) > 0 {
		fmt.Fprintln(w, "Failed to restore:")
		for _, f := range res.Failed[:min(len(res.Failed), maxListed)] {
			fmt.Fprintf(w, "  - %s (%v)\n", filepath.Base(f.Path), f.Err)
		}
		if len(res.Failed) > maxListed {
			fmt.Fprintf(w, "  ... and %d more\n", len(res.Failed)-maxListed)
		}
		if anyMismatch(res.Failed) {
			fmt.Fprintln(w, `Files changed after being moved are kept in place; rerun with --force to restore them anyway.`)
		}
	}
	fmt.Fprintf(w, "Log: %s\n", linkText("%s", res.LogPath))
	return err
}

// showHistory lists recent runs from the journal.
func showHistory(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.openJournal(); err != nil {
		return err
	}

	runs, err := e.db.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			humanize.Time(r.StartedAt),
			statusText(r.Status),
			r.SourcePath,
			strconv.FormatInt(r.Moved, 10),
			strconv.FormatInt(r.Skipped, 10),
			strconv.FormatInt(r.Failed, 10),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Run", "When", "Status", "Source", "Moved", "Skipped", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}

// showRun prints the header and every move record of one run.
func showRun(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.openJournal(); err != nil {
		return err
	}

	run, err := e.db.GetRun(c.String("run"))
	if err != nil {
		return err
	}
	moves, err := e.db.GetMoves(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get moves: %v", err)
	}
	stats, err := e.db.GetStats(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run:     %s (%s)\n", run.ID, statusText(run.Status))
	fmt.Fprintf(w, "Source:  %s\n", run.SourcePath)
	fmt.Fprintf(w, "Target:  %s\n", run.TargetPath)
	fmt.Fprintf(w, "Started: %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Took:    %s\n", utils.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	fmt.Fprintf(w, "Log:     %s\n", run.LogPath)
	fmt.Fprintf(w, "Files:   %d moved (%s), %d skipped, %d failed, %d restored, %d restore failures\n",
		stats.MovedFiles, utils.FormatSize(stats.MovedSize), stats.SkippedFiles, stats.FailedFiles,
		stats.RestoredFiles, stats.RestoreFailed)

	rows := make([][]string, 0, len(moves))
	for _, m := range moves {
		rows = append(rows, []string{strconv.Itoa(m.Seq), statusText(m.Status), m.Rule, m.SourcePath, m.DestPath, m.Error})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Status", "Rule", "From", "To", "Error"}, rows,
		[]columnAlignment{alignRight}))
	return nil
}

// initRules writes the built-in rules to a YAML file.
func initRules(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	path := c.String("path")
	if path == "" {
		path = e.cfg.RulesPath
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := rules.Default().Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	fmt.Fprintf(w, "Rules written to %s\n", path)
	return nil
}

// checkRules validates the rules file and prints what each rule does.
func checkRules(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	rs, err := e.loadRules(c)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		exts := make([]string, 0, len(r.Match.Ext))
		for _, ext := range r.Match.Ext {
			exts = append(exts, rules.NormalizeExt(ext))
		}
		rows = append(rows, []string{r.Name, strings.Join(exts, " "), r.Action.MoveTo})
	}
	fmt.Fprintln(w, renderTable([]string{"Rule", "Extensions", "Move to"}, rows, nil))
	target := rs.Target
	if target == "" {
		target = rules.DefaultTarget
	}
	fmt.Fprintf(w, "Target: %s\n", target)
	if len(rs.Exclude) > 0 {
		fmt.Fprintf(w, "Exclude: %s\n", strings.Join(rs.Exclude, ", "))
	}
	fmt.Fprintln(w, successText("Rules are valid."))
	return nil
}

// listLogs prints the run logs in the log directory, newest first.
func listLogs(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	logs, err := runlog.List(e.cfg.LogDir)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintf(w, "No run logs in %s\n", e.cfg.LogDir)
		return nil
	}

	_, archived := archive.Pending(logs)
	shipped := make(map[string]bool, len(archived))
	for _, p := range archived {
		shipped[p] = true
	}

	rows := make([][]string, 0, len(logs))
	for _, p := range logs {
		var size, when string
		if info, err := os.Stat(p); err == nil {
			size = utils.FormatSize(info.Size())
			when = humanize.Time(info.ModTime())
		}
		state := ""
		if shipped[p] {
			state = successText("archived")
		}
		rows = append(rows, []string{filepath.Base(p), when, size, state})
	}
	fmt.Fprintln(w, renderTable([]string{"Log", "When", "Size", "Archive"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
	return nil
}

// pushLogs uploads run logs that have not been archived yet.
func pushLogs(c *cli.Context) error {
	w := c.App.Writer
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	uploader, err := archive.NewUploader(e.cfg.Archive, e.logger)
	if err != nil {
		return err
	}
	logs, err := runlog.List(e.cfg.LogDir)
	if err != nil {
		return err
	}

	res, err := uploader.Push(c.Context, logs)
	if res != nil {
		fmt.Fprintf(w, "Uploaded: %d   Already archived: %d   Failed: %d\n", len(res.Uploaded), len(res.Skipped), len(res.Failed))
		failed := make([]string, 0, len(res.Failed))
		for p := range res.Failed {
			failed = append(failed, p)
		}
		sort.Strings(failed)
		for _, p := range failed {
			fmt.Fprintf(w, "  - %s (%v)\n", filepath.Base(p), res.Failed[p])
		}
		if err == nil && len(res.Failed) > 0 {
			err = fmt.Errorf("%d logs failed to upload", len(res.Failed))
		}
	}
	return err
}

func planFor(c *cli.Context, e *env) (*models.Plan, error) {
	rs, err := e.loadRules(c)
	if err != nil {
		return nil, err
	}
	excludes := append([]string{e.cfg.LogDir}, e.journalFiles()...)
	return organize.Plan(c.Context, c.String("source"), rs, organize.PlanOptions{
		ExcludePaths: excludes,
		Logger:       e.logger,
	})
}

func printPlanSummary(w io.Writer, plan *models.Plan) {
	fmt.Fprintf(w, "Inside: %s\n", linkText("%s", plan.Target))

	counts := plan.CountByRule()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, counts[name]))
	}
	fmt.Fprintf(w, "Files will be organized into %s\n", strings.Join(parts, " / "))
	fmt.Fprintf(w, "%d files (%s) to move; %d scanned, %d without a matching rule, %d excluded.\n",
		len(plan.Moves), utils.FormatSize(plan.TotalSize()), plan.Scanned, plan.Unmatched, plan.Excluded)
}

func anyMismatch(failures []organize.UndoFailure) bool {
	for _, f := range failures {
		if errors.Is(f.Err, organize.ErrChecksumMismatch) {
			return true
		}
	}
	return false
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
