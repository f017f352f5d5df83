package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"favsync/pkg/mirror"
	"favsync/pkg/updates"
)

type ColumnAlignment int

const (
	AlignLeft ColumnAlignment = iota
	AlignRight
)

// RenderTable draws rows under headers with rounded borders. Short rows are
// padded with empty cells.
func RenderTable(headers []string, rows [][]string, aligns []ColumnAlignment) string {
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
		if i < len(aligns) && aligns[i] == AlignRight {
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

// PlanTable lists the items a run is about to process.
func PlanTable(plan []mirror.PlanEntry) string {
	rows := make([][]string, 0, len(plan))
	for i, e := range plan {
		status := "new"
		switch {
		case e.Complete:
			status = "complete"
		case e.Known:
			status = "partial"
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), e.ID, truncate(e.Title, 60), status})
	}
	return RenderTable([]string{"#", "ID", "Title", "Status"}, rows,
		[]ColumnAlignment{AlignRight, AlignLeft, AlignLeft, AlignLeft})
}

// SummaryTable tallies a finished run.
func SummaryTable(sum mirror.Summary) string {
	rows := [][]string{
		{"Completed", fmt.Sprint(len(sum.Completed)), ""},
		{"Skipped", fmt.Sprint(len(sum.Skipped)), ""},
		{"Incomplete", fmt.Sprint(len(sum.Incomplete)), strings.Join(sum.Incomplete, ", ")},
		{"Failed", fmt.Sprint(len(sum.Failed)), strings.Join(sum.Failed, ", ")},
		{"Pages", fmt.Sprint(sum.Pages), humanize.Bytes(uint64(sum.Bytes))},
	}
	return RenderTable([]string{"Outcome", "Count", "Details"}, rows,
		[]ColumnAlignment{AlignLeft, AlignRight, AlignLeft})
}

// UpdatesTable lists authors with an album not yet stored locally.
func UpdatesTable(results []updates.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Author, r.UnseenID, truncate(r.Title, 60)})
	}
	return RenderTable([]string{"Author", "Newest unseen ID", "Title"}, rows, nil)
}
