package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column names one table column. Count columns are right-aligned so the
// run and status tables line their numbers up.
type column struct {
	name  string
	count bool
}

var (
	// runResultColumns lays out the per-podcast summary printed after a run.
	runResultColumns = []column{
		{name: "PID"},
		{name: "Name"},
		{name: "Episodes", count: true},
		{name: "Eligible", count: true},
		{name: "Documents", count: true},
		{name: "Status"},
	}
	// recentRunColumns lays out the run history shown by status.
	recentRunColumns = []column{
		{name: "Run"},
		{name: "Started"},
		{name: "Finished"},
		{name: "Episodes", count: true},
		{name: "Documents", count: true},
		{name: "Failures", count: true},
		{name: "Status"},
	}
	// runOutcomeColumns lays out the per-episode outcomes of a single run.
	runOutcomeColumns = []column{
		{name: "PID"},
		{name: "Episode"},
		{name: "Title"},
		{name: "State"},
		{name: "Document"},
		{name: "Reason"},
	}
)

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		header[i] = col.name
		align := text.AlignLeft
		if col.count {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render()
}
