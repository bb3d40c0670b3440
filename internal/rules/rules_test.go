package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
target: Sorted
exclude: [".DS_Store", "*.part"]
rules:
  - name: Images
    match:
      ext: [JPG, .png]
    action:
      move_to: Images
  - name: Everything jpg
    match:
      ext: [.jpg]
    action:
      move_to: Other
  - name: PDFs
    match:
      ext: [.pdf]
    action:
      move_to: Papers/PDFs
`

func TestParse_NormalizesAndMatchesFirstRule(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	r, ok := rs.Match("Holiday.JpG")
	require.True(t, ok)
	assert.Equal(t, "Images", r.Name)

	r, ok = rs.Match("/tmp/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "Papers/PDFs", r.Action.MoveTo)

	_, ok = rs.Match("notes.txt")
	assert.False(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no rules", "target: x\n"},
		{"no extensions", "rules:\n  - name: a\n    action: {move_to: A}\n"},
		{"empty move_to", "rules:\n  - name: a\n    match: {ext: [.a]}\n"},
		{"absolute move_to", "rules:\n  - name: a\n    match: {ext: [.a]}\n    action: {move_to: /abs}\n"},
		{"escaping move_to", "rules:\n  - name: a\n    match: {ext: [.a]}\n    action: {move_to: ../up}\n"},
		{"duplicate names", "rules:\n  - name: a\n    match: {ext: [.a]}\n    action: {move_to: A}\n  - name: a\n    match: {ext: [.b]}\n    action: {move_to: B}\n"},
		{"bad exclude", "exclude: [\"[\"]\nrules:\n  - name: a\n    match: {ext: [.a]}\n    action: {move_to: A}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"photo.JPG", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{".bashrc", ""},
		{"noext", ""},
		{"trailing.", ""},
		{"dir/sub/clip.mp4", ".mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Ext(tt.input))
		})
	}
}

func TestResolveTarget(t *testing.T) {
	rs := &RuleSet{}
	assert.Equal(t, filepath.Join("/src", DefaultTarget), rs.ResolveTarget("/src"))

	rs.Target = "out"
	assert.Equal(t, filepath.Join("/src", "out"), rs.ResolveTarget("/src"))

	abs := filepath.Join(t.TempDir(), "abs")
	rs.Target = abs
	assert.Equal(t, abs, rs.ResolveTarget("/src"))
}

func TestExcluded(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)
	assert.True(t, rs.Excluded(".DS_Store"))
	assert.True(t, rs.Excluded("movie.mkv.part"))
	assert.False(t, rs.Excluded("movie.mkv"))
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	rs, isDefault, err := LoadOrDefault(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, isDefault)
	r, ok := rs.Match("a.pdf")
	require.True(t, ok)
	assert.Equal(t, "PDFs", r.Name)

	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))
	rs, isDefault, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.False(t, isDefault)
	assert.Equal(t, "Sorted", rs.Target)
}

func TestDefaultRoundTripsThroughYAML(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	rs, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 4)
	assert.Equal(t, DefaultTarget, rs.Target)
}

func TestRepositoryRulesFileIsValid(t *testing.T) {
	rs, err := Load(filepath.Join("..", "..", "rules.yaml"))
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 4)
	assert.True(t, rs.Excluded("song.mp3.crdownload"))
}
