package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"favsync/pkg/mirror"
)

const barWidth = 20

// ProgressDisplay renders a single status line for a mirror run. It
// implements mirror.Observer.
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	totalItems int
	itemsDone  int
	title      string
	chapter    string
	chapters   int
	pagesTotal int
	pagesDone  int
	bytes      int64
	errors     int
	verbose    bool
}

var _ mirror.Observer = (*ProgressDisplay)(nil)

// NewProgressDisplay creates a display for a run over totalItems items.
// In verbose mode every chapter gets its own line instead of the live bar.
func NewProgressDisplay(out io.Writer, totalItems int, verbose bool) *ProgressDisplay {
	if out == nil {
		out = Out
	}
	return &ProgressDisplay{
		out:        out,
		totalItems: totalItems,
		verbose:    verbose,
	}
}

func (p *ProgressDisplay) ItemStarted(id, title string, subUnits int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.title = title
	p.chapters = subUnits
	p.chapter = ""
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s %s\n", Magenta("→"), title, Dim(fmt.Sprintf("(%s, %d chapters)", id, subUnits)))
	}
}

func (p *ProgressDisplay) SubUnitStarted(itemID, name string, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chapter = name
	p.pagesTotal = pages
	p.pagesDone = 0
	if !p.verbose {
		p.printProgress()
	}
}

func (p *ProgressDisplay) PageDone(size int64, skipped bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pagesDone++
	if err != nil {
		p.errors++
	} else if !skipped {
		p.bytes += size
	}
	if !p.verbose {
		p.printProgress()
	}
}

func (p *ProgressDisplay) SubUnitDone(itemID, name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "  %s %s • %v\n", Red("✗"), name, err)
		return
	}
	fmt.Fprintf(p.out, "  %s %s\n", Green("✓"), name)
}

func (p *ProgressDisplay) ItemDone(id string, outcome mirror.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.itemsDone++
	if outcome == mirror.Skipped && !p.verbose {
		p.printProgress()
		return
	}

	mark := Green("✓")
	switch outcome {
	case mirror.Incomplete:
		mark = Yellow("…")
	case mirror.Failed:
		mark = Red("✗")
	case mirror.Skipped:
		mark = Dim("•")
	}
	title := p.title
	if title == "" {
		title = id
	}
	fmt.Fprintf(p.out, "\r%s\r%s %s %s\n", strings.Repeat(" ", 120), mark, title, Dim(outcome.String()))
	p.title = ""
}

// printProgress prints the live status line
func (p *ProgressDisplay) printProgress() {
	line := fmt.Sprintf("[%s] %d/%d", bar(p.itemsDone, p.totalItems), p.itemsDone, p.totalItems)
	if p.title != "" {
		line += " • " + Cyan(truncate(p.title, 40))
	}
	if p.chapter != "" {
		line += fmt.Sprintf(" • %s %d/%d", p.chapter, p.pagesDone, p.pagesTotal)
	}
	line += " • " + humanize.Bytes(uint64(p.bytes))
	if p.errors > 0 {
		line += " • " + Red(fmt.Sprintf("%d errors", p.errors))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the closing line of the run
func (p *ProgressDisplay) Complete(sum mirror.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s Processed %d items in %s\n",
		Green("✓"),
		sum.Total(),
		formatDuration(sum.Duration),
	)
	fmt.Fprintf(p.out, "  %s %d pages, %s downloaded\n",
		Dim("•"),
		sum.Pages,
		humanize.Bytes(uint64(sum.Bytes)),
	)
	if p.errors > 0 {
		fmt.Fprintf(p.out, "  %s %d page downloads failed\n", Dim("•"), p.errors)
	}
}

func bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
