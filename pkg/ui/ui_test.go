package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"favsync/pkg/mirror"
	"favsync/pkg/updates"

	"github.com/stretchr/testify/assert"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := RenderTable([]string{"A", "B"}, [][]string{{"only"}}, []ColumnAlignment{AlignLeft, AlignRight})
	assert.Contains(t, out, "only")
	assert.Equal(t, "", RenderTable(nil, nil, nil))
}

func TestPlanTableStatus(t *testing.T) {
	out := PlanTable([]mirror.PlanEntry{
		{ID: "1", Title: "Fresh"},
		{ID: "2", Title: "Halfway", Known: true},
		{ID: "3", Title: "Done", Known: true, Complete: true},
	})
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "complete")
}

func TestSummaryTable(t *testing.T) {
	out := SummaryTable(mirror.Summary{
		Completed:  []string{"1"},
		Incomplete: []string{"7", "9"},
		Pages:      12,
		Bytes:      2_000_000,
	})
	assert.Contains(t, out, "7, 9")
	assert.Contains(t, out, "2.0 MB")
}

func TestUpdatesTable(t *testing.T) {
	out := UpdatesTable([]updates.Result{{Author: "alice", UnseenID: "30", Title: "New"}})
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "30")
}

func TestProgressDisplay(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, 2, false)

	p.ItemStarted("1", "Album", 1)
	p.SubUnitStarted("1", "Chapter 1", 2)
	p.PageDone(1000, false, nil)
	p.PageDone(0, false, errors.New("boom"))
	p.SubUnitDone("1", "Chapter 1", errors.New("1 of 2 pages failed"))
	p.ItemDone("1", mirror.Incomplete)
	p.ItemDone("2", mirror.Skipped)
	p.Complete(mirror.Summary{Incomplete: []string{"1"}, Skipped: []string{"2"}, Pages: 1, Bytes: 1000, Duration: 3 * time.Second})

	out := buf.String()
	assert.Contains(t, out, "Chapter 1 1/2")
	assert.Contains(t, out, "1 errors")
	assert.Contains(t, out, "Album incomplete")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "Processed 2 items in 3s")
	assert.False(t, strings.Contains(out, "\033["), "colors disabled")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}

func TestBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("─", barWidth), bar(0, 0))
	assert.Equal(t, strings.Repeat("━", barWidth), bar(5, 5))
	assert.Equal(t, strings.Repeat("━", 10)+strings.Repeat("─", 10), bar(1, 2))
}

func TestNotifierRunFinished(t *testing.T) {
	SetColor(false)
	defer SetColor(true)
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	var titles []string
	n := NewNotifierWithSender(func(title, message string) error {
		titles = append(titles, title)
		return errors.New("no desktop")
	})

	n.RunFinished(mirror.Summary{Completed: []string{"1"}})
	n.RunFinished(mirror.Summary{Completed: []string{"1"}, Failed: []string{"2"}})

	assert.Equal(t, []string{"favsync finished", "favsync finished with problems"}, titles)
	assert.Contains(t, buf.String(), "1 completed, 0 skipped, 0 incomplete, 1 failed")
}

func TestAppleQuote(t *testing.T) {
	assert.Equal(t, `"say \"hi\" \\ bye"`, appleQuote(`say "hi" \ bye`))
}
