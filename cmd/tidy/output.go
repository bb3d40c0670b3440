package main

import (
	"fmt"
	"io"

	"github.com/eiannone/keyboard"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	headerText  = color.New(color.FgHiMagenta, color.Bold).SprintfFunc()
	successText = color.New(color.FgGreen).SprintfFunc()
	warnText    = color.New(color.FgYellow).SprintfFunc()
	errorText   = color.New(color.FgRed).SprintfFunc()
	linkText    = color.New(color.FgBlue, color.Underline).SprintfFunc()
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// statusText colors a journal status for display
func statusText(status string) string {
	switch status {
	case "moved", "restored", "undone":
		return successText("%s", status)
	case "skipped", "partially_undone", "applied":
		return warnText("%s", status)
	case "failed", "restore_failed":
		return errorText("%s", status)
	default:
		return status
	}
}

// confirm asks a y/N question and reads a single key press from the terminal.
func confirm(w io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(w, "%s [y/N] ", prompt)
	char, key, err := keyboard.GetSingleKey()
	if err != nil {
		fmt.Fprintln(w)
		return false, fmt.Errorf("read confirmation (pass --yes when not on a terminal): %w", err)
	}
	if key == keyboard.KeyEnter || char == 0 {
		fmt.Fprintln(w)
		return false, nil
	}
	fmt.Fprintln(w, string(char))
	return char == 'y' || char == 'Y', nil
}
