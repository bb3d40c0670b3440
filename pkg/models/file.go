package models

import "time"

// File represents a regular file found while scanning a source folder
type File struct {
	Path    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// PlannedMove is a single move computed by the planner but not yet executed
type PlannedMove struct {
	Source      string
	Destination string
	Rule        string
	Size        int64
}

// Plan is the outcome of a preview
type Plan struct {
	Source    string
	Target    string
	Moves     []PlannedMove
	Scanned   int
	Unmatched int
	Excluded  int

	// UnmatchedFiles lists the files no rule applied to.
	UnmatchedFiles []File
}

// TotalSize returns the number of bytes the plan would move
func (p *Plan) TotalSize() int64 {
	var total int64
	for _, m := range p.Moves {
		total += m.Size
	}
	return total
}

// CountByRule returns the number of planned moves per rule name
func (p *Plan) CountByRule() map[string]int {
	counts := make(map[string]int)
	for _, m := range p.Moves {
		counts[m.Rule]++
	}
	return counts
}
