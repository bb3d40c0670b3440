// Package rules loads the extension rule set and classifies files against it.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTarget is used when the rule file does not name a target folder.
const DefaultTarget = "Organized"

// ErrInvalidRule is wrapped by every validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// Match selects the files a rule applies to.
type Match struct {
	Ext []string `yaml:"ext"`
}

// Action describes where matched files go.
type Action struct {
	MoveTo string `yaml:"move_to"`
}

// Rule maps a set of extensions to a destination subfolder.
type Rule struct {
	Name   string `yaml:"name"`
	Match  Match  `yaml:"match"`
	Action Action `yaml:"action"`

	exts map[string]struct{}
}

// RuleSet models rules.yaml.
type RuleSet struct {
	Target  string   `yaml:"target,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
	Rules   []Rule   `yaml:"rules"`
}

// Load reads and validates a rule file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*RuleSet, bool, error) {
	rs, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), true, nil
	}
	return rs, false, err
}

// Parse decodes and validates YAML rule data.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Default returns the built-in Images/PDFs/Docs/Videos rule set.
func Default() *RuleSet {
	rs := &RuleSet{
		Target: DefaultTarget,
		Rules: []Rule{
			{Name: "Images", Match: Match{Ext: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic", ".svg", ".tiff"}}, Action: Action{MoveTo: "Images"}},
			{Name: "PDFs", Match: Match{Ext: []string{".pdf"}}, Action: Action{MoveTo: "PDFs"}},
			{Name: "Docs", Match: Match{Ext: []string{".doc", ".docx", ".txt", ".md", ".rtf", ".odt", ".xls", ".xlsx", ".csv", ".ppt", ".pptx"}}, Action: Action{MoveTo: "Docs"}},
			{Name: "Videos", Match: Match{Ext: []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".webm", ".m4v"}}, Action: Action{MoveTo: "Videos"}},
		},
	}
	_ = rs.Validate()
	return rs
}

// Marshal renders the rule set as YAML.
func (rs *RuleSet) Marshal() ([]byte, error) {
	return yaml.Marshal(rs)
}

// Validate normalizes extensions and rejects unusable rules.
func (rs *RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("%w: no rules defined", ErrInvalidRule)
	}
	for _, pattern := range rs.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: exclude pattern %q: %v", ErrInvalidRule, pattern, err)
		}
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule name %q", ErrInvalidRule, r.Name)
		}
		seen[r.Name] = true

		if err := validateMoveTo(r.Action.MoveTo); err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Name, err)
		}

		r.exts = make(map[string]struct{}, len(r.Match.Ext))
		for _, ext := range r.Match.Ext {
			norm := NormalizeExt(ext)
			if norm == "" {
				continue
			}
			r.exts[norm] = struct{}{}
		}
		if len(r.exts) == 0 {
			return fmt.Errorf("%w: rule %q has no extensions", ErrInvalidRule, r.Name)
		}
	}
	return nil
}

func validateMoveTo(moveTo string) error {
	if strings.TrimSpace(moveTo) == "" {
		return errors.New("move_to is empty")
	}
	if filepath.IsAbs(moveTo) {
		return fmt.Errorf("move_to %q must be relative to the target", moveTo)
	}
	clean := filepath.Clean(moveTo)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("move_to %q escapes the target folder", moveTo)
	}
	return nil
}

// Match returns the first rule matching the extension of name.
func (rs *RuleSet) Match(name string) (*Rule, bool) {
	ext := Ext(name)
	if ext == "" {
		return nil, false
	}
	for i := range rs.Rules {
		if _, ok := rs.Rules[i].exts[ext]; ok {
			return &rs.Rules[i], true
		}
	}
	return nil, false
}

// Excluded reports whether a base name matches any exclude pattern.
func (rs *RuleSet) Excluded(name string) bool {
	for _, pattern := range rs.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ResolveTarget returns the absolute target folder for a source folder.
func (rs *RuleSet) ResolveTarget(source string) string {
	target := rs.Target
	if target == "" {
		target = DefaultTarget
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(source, target)
}

// NormalizeExt lowercases an extension and ensures a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Ext returns the lowercased extension of a file name including the dot.
// Dotfiles without a further dot, such as ".bashrc", have no extension.
func Ext(name string) string {
	base := filepath.Base(name)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	if strings.Trim(base[:idx], ".") == "" {
		return ""
	}
	return strings.ToLower(base[idx:])
}
