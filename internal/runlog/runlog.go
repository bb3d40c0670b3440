// Package runlog writes and reads the human-readable per-run log files.
//
// An apply log looks like:
//
//	[Apply] 20251018_101500
//	Source: /home/me/Downloads
//
//	MOVED	/home/me/Downloads/a.jpg -> /home/me/Downloads/Organized/Images/a.jpg
//	SKIPPED	/home/me/Downloads/b.pdf
//	FAILED	/home/me/Downloads/c.mp4 -> /home/me/Downloads/Organized/Videos/c.mp4 (PathError: ...)
//
//	SUMMARY
//	Moved: 1  Skipped: 1  Failed: 1
package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Kinds of run logs.
const (
	KindApply = "Apply"
	KindUndo  = "Undo"
)

// Entry markers.
const (
	Moved    = "MOVED"
	Skipped  = "SKIPPED"
	Failed   = "FAILED"
	Restored = "RESTORED"
)

const stampLayout = "20060102_150405"

var filePrefix = map[string]string{
	KindApply: "arranger_",
	KindUndo:  "undo_",
}

// ErrNotApplyLog is returned when undo is asked to reverse a log that does
// not describe an apply run.
var ErrNotApplyLog = errors.New("not an apply log")

// Log is an open run log file.
type Log struct {
	Path string
	f    *os.File
	w    *bufio.Writer
}

// Create opens a new log file in dir named after kind and now, and writes
// the header.
func Create(dir, kind, source string, now time.Time) (*Log, error) {
	prefix, ok := filePrefix[kind]
	if !ok {
		return nil, fmt.Errorf("unknown log kind %q", kind)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	stamp := now.Format(stampLayout)
	var (
		f   *os.File
		err error
	)
	for i := 0; i < 100; i++ {
		name := prefix + stamp + ".txt"
		if i > 0 {
			name = fmt.Sprintf("%s%s_%d.txt", prefix, stamp, i)
		}
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil || !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	l := &Log{Path: f.Name(), f: f, w: bufio.NewWriter(f)}
	fmt.Fprintf(l.w, "[%s] %s\nSource: %s\n\n", kind, stamp, source)
	return l, nil
}

// Moved records a completed move.
func (l *Log) Moved(src, dst string) {
	fmt.Fprintf(l.w, "%s\t%s -> %s\n", Moved, src, dst)
}

// Skipped records a file left in place.
func (l *Log) Skipped(src string) {
	fmt.Fprintf(l.w, "%s\t%s\n", Skipped, src)
}

// Failed records a move that could not be completed.
func (l *Log) Failed(src, dst string, err error) {
	fmt.Fprintf(l.w, "%s\t%s -> %s (%s: %v)\n", Failed, src, dst, errorKind(err), err)
}

// Restored records a file moved back by undo.
func (l *Log) Restored(from, to string) {
	fmt.Fprintf(l.w, "%s\t%s -> %s\n", Restored, from, to)
}

// Summary writes the trailing summary block.
func (l *Log) Summary(line string) {
	fmt.Fprintf(l.w, "\nSUMMARY\n%s\n", line)
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

func errorKind(err error) string {
	if err == nil {
		return "Error"
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// Entry is one parsed log line.
type Entry struct {
	Kind   string
	Source string
	Dest   string
	Detail string
}

// Parsed is the content of a run log.
type Parsed struct {
	Kind    string
	Stamp   string
	Source  string
	Entries []Entry
}

// Moves returns the MOVED entries in file order.
func (p *Parsed) Moves() []Entry {
	var moves []Entry
	for _, e := range p.Entries {
		if e.Kind == Moved {
			moves = append(moves, e)
		}
	}
	return moves
}

// ParseFile parses the run log at path.
func ParseFile(path string) (*Parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a run log. Unknown lines are ignored.
func Parse(r io.Reader) (*Parsed, error) {
	var p Parsed
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "[") && p.Kind == "":
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, fmt.Errorf("malformed header %q", line)
			}
			p.Kind = line[1:end]
			p.Stamp = strings.TrimSpace(line[end+1:])
		case strings.HasPrefix(line, "Source: ") && p.Source == "":
			p.Source = strings.TrimPrefix(line, "Source: ")
		default:
			marker, rest, ok := strings.Cut(line, "\t")
			if !ok {
				continue
			}
			switch marker {
			case Moved, Restored:
				src, dst, ok := splitArrow(rest)
				if !ok {
					return nil, fmt.Errorf("malformed %s line %q", marker, line)
				}
				p.Entries = append(p.Entries, Entry{Kind: marker, Source: src, Dest: dst})
			case Skipped:
				p.Entries = append(p.Entries, Entry{Kind: marker, Source: rest})
			case Failed:
				var detail string
				if m := failedDetail.FindStringSubmatchIndex(rest); m != nil {
					detail = rest[m[2]:m[3]]
					rest = rest[:m[0]]
				}
				src, dst, ok := splitArrow(rest)
				if !ok {
					src = rest
				}
				p.Entries = append(p.Entries, Entry{Kind: marker, Source: src, Dest: dst, Detail: detail})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p.Kind == "" {
		return nil, errors.New("missing run log header")
	}
	return &p, nil
}

// failedDetail matches the " (Kind: message)" suffix of a FAILED line.
var failedDetail = regexp.MustCompile(` \(([A-Za-z][A-Za-z0-9]*: .*)\)$`)

// splitArrow splits "src -> dst". Paths may contain " -> " themselves, so
// when there are several candidates it prefers a split with absolute paths
// on both sides whose base names agree once collision suffixes like " (1)"
// or " (undone 1)" are dropped, then one whose destination exists.
func splitArrow(s string) (string, string, bool) {
	const sep = " -> "
	var candidates [][2]string
	for i := 0; ; {
		idx := strings.Index(s[i:], sep)
		if idx < 0 {
			break
		}
		at := i + idx
		candidates = append(candidates, [2]string{s[:at], s[at+len(sep):]})
		i = at + 1
	}
	switch len(candidates) {
	case 0:
		return "", "", false
	case 1:
		return candidates[0][0], candidates[0][1], true
	}

	var absolute [][2]string
	for _, c := range candidates {
		if filepath.IsAbs(c[0]) && filepath.IsAbs(c[1]) {
			absolute = append(absolute, c)
		}
	}
	if len(absolute) == 0 {
		absolute = candidates
	}
	for _, c := range absolute {
		if baseKey(c[0]) == baseKey(c[1]) {
			return c[0], c[1], true
		}
	}
	for _, c := range absolute {
		if _, err := os.Lstat(c[1]); err == nil {
			return c[0], c[1], true
		}
	}
	return absolute[0][0], absolute[0][1], true
}

// collisionSuffix matches the " (n)" and " (undone n)" markers added to
// names that would collide.
var collisionSuffix = regexp.MustCompile(` \((?:undone )?\d+\)$`)

func baseKey(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return collisionSuffix.ReplaceAllString(stem, "") + ext
}

// List returns the run log files in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	type logFile struct {
		path string
		mod  time.Time
	}
	var logs []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		if !strings.HasPrefix(e.Name(), filePrefix[KindApply]) && !strings.HasPrefix(e.Name(), filePrefix[KindUndo]) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logFile{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].mod.Equal(logs[j].mod) {
			return logs[i].path > logs[j].path
		}
		return logs[i].mod.After(logs[j].mod)
	})

	paths := make([]string, len(logs))
	for i, l := range logs {
		paths[i] = l.path
	}
	return paths, nil
}
