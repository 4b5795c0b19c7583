// Package observability provides formatted terminal output for runs and the store.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/idea-funnel/internal/pipeline"
	"github.com/jonathan/idea-funnel/internal/store"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads line to the box's inner width, counting runes.
func pad(line string) string {
	width := boxWidth - 4
	if utf8.RuneCountInString(line) > width {
		runes := []rune(line)
		line = string(runes[:width-3]) + "..."
	}
	return line + strings.Repeat(" ", width-utf8.RuneCountInString(line))
}

// PrintRunSummary outputs per-stage counts, finalists and run totals.
func (p *Printer) PrintRunSummary(summary *pipeline.RunSummary) {
	if summary == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:        %s\n", summary.RunID))
	if summary.Generated > 0 || summary.Duplicates > 0 {
		sb.WriteString(fmt.Sprintf("Generated:  %d new, %d duplicates skipped\n", summary.Generated, summary.Duplicates))
	}
	sb.WriteString("\n")

	for _, st := range summary.Stages {
		sb.WriteString(fmt.Sprintf("Stage %d %-18s %3d in  %3d pass  %3d kill", st.Index, st.Name, st.Entered, st.Passed, st.Killed))
		if st.Errors > 0 {
			sb.WriteString(fmt.Sprintf(" (%d err)", st.Errors))
		}
		sb.WriteString("\n")
	}
	if summary.StoppedEarlyAt > 0 {
		sb.WriteString(fmt.Sprintf("Stopped at stage %d: no candidates left\n", summary.StoppedEarlyAt))
	}
	if summary.Interrupted {
		sb.WriteString("Interrupted: resume to continue\n")
	}

	sb.WriteString(fmt.Sprintf("\nFinalists:  %d\n", len(summary.Finalists)))
	sb.WriteString(fmt.Sprintf("Calls:      %d\n", summary.Calls))
	if d := summary.Duration(); d > 0 {
		sb.WriteString(fmt.Sprintf("Duration:   %s\n", d.Round(time.Second)))
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintFinalists(summary.Finalists)
}

// PrintFinalists outputs the top finalists by total score.
func (p *Printer) PrintFinalists(finalists []store.Record) {
	if len(finalists) == 0 {
		return
	}

	ranked := make([]store.Record, len(finalists))
	copy(ranked, finalists)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore() > ranked[j].TotalScore()
	})

	var sb strings.Builder
	count := min(len(ranked), maxItemsToShow)
	for i := 0; i < count; i++ {
		rec := ranked[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", rec.ID, rec.Business))
		sb.WriteString(fmt.Sprintf("    Pain:  %s\n", rec.Pain))
		if score := rec.TotalScore(); score > 0 {
			sb.WriteString(fmt.Sprintf("    Score: %g\n", score))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(ranked) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more finalists", len(ranked)-maxItemsToShow))
	}

	p.printBox("FINALISTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStatusCounts outputs the store's records grouped by status label.
func (p *Printer) PrintStatusCounts(counts map[string]int) {
	labels := make([]string, 0, len(counts))
	total := 0
	for label, n := range counts {
		labels = append(labels, label)
		total += n
	}
	sort.Slice(labels, func(i, j int) bool {
		gi, si := statusOrder(labels[i])
		gj, sj := statusOrder(labels[j])
		if gi != gj {
			return gi < gj
		}
		if si != sj {
			return si < sj
		}
		return labels[i] < labels[j]
	})

	var sb strings.Builder
	for _, label := range labels {
		sb.WriteString(fmt.Sprintf("%-24s %5d\n", label, counts[label]))
	}
	sb.WriteString(fmt.Sprintf("%-24s %5d", "total", total))

	p.printBox("CANDIDATE STORE", sb.String())
}

// statusOrder places generated first, then live records by stage, then
// killed records by stage, then finalists.
func statusOrder(label string) (group, stage int) {
	if idx := strings.LastIndex(label, "_stage_"); idx >= 0 {
		stage, _ = strconv.Atoi(label[idx+len("_stage_"):])
	}
	switch {
	case label == string(store.StatusGenerated):
		return 0, 0
	case label == string(store.StatusFinalist):
		return 3, 0
	case strings.HasPrefix(label, string(store.StatusKilled)):
		return 2, stage
	default:
		return 1, stage
	}
}

// Progress returns a callback that prints run progress lines.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Progress() pipeline.ProgressCallback {
	return func(event pipeline.ProgressEvent) {
		switch event.Category {
		case pipeline.CategoryStageStart:
			fmt.Fprintf(p.out, "\n%s\n", event.Message)
		case pipeline.CategoryCandidate:
			fmt.Fprintf(p.out, "  %s\n", event.Message)
		default:
			fmt.Fprintf(p.out, "%s\n", event.Message)
		}
	}
}
