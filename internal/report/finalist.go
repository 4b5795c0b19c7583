// Package report writes human-readable finalist reports.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/jonathan/idea-funnel/internal/store"
)

const (
	ruleWidth  = 80
	maxSlugLen = 30
)

// FileName returns FINALIST_<id>_<slug>.txt for rec.
func FileName(rec store.Record) string {
	return fmt.Sprintf("FINALIST_%d_%s.txt", rec.ID, Slug(rec.Business))
}

// Slug keeps letters and digits of s, turns every other run of characters
// into a single underscore and truncates to 30 runes.
func Slug(s string) string {
	var sb strings.Builder
	underscore := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n >= maxSlugLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			underscore = false
			n++
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
			n++
		}
	}
	slug := strings.TrimRight(sb.String(), "_")
	if slug == "" {
		return "idea"
	}
	return slug
}

// Render formats the full report for rec.
func Render(rec store.Record) string {
	var sb strings.Builder
	rule := strings.Repeat("=", ruleWidth)
	thin := strings.Repeat("-", ruleWidth)

	fmt.Fprintf(&sb, "%s\nFINALIST IDEA #%d\n%s\n\n", rule, rec.ID, rule)
	fmt.Fprintf(&sb, "BUSINESS: %s\n\n", rec.Business)
	fmt.Fprintf(&sb, "PAIN POINT: %s\n\n", rec.Pain)
	fmt.Fprintf(&sb, "HASH: %s\n", rec.Hash)
	if rec.RunID != "" {
		fmt.Fprintf(&sb, "RUN: %s\n", rec.RunID)
	}
	if rec.Source != "" {
		fmt.Fprintf(&sb, "SOURCE: %s\n", rec.Source)
	}
	fmt.Fprintf(&sb, "TOTAL SCORE: %s\n\n", formatNumber(rec.TotalScore()))

	fmt.Fprintf(&sb, "%s\nSTAGE HISTORY\n%s\n", rule, rule)
	for _, h := range rec.History {
		fmt.Fprintf(&sb, "\nStage %d: %s\n%s\n", h.Stage, h.StageName, thin)
		fmt.Fprintf(&sb, "Verdict: %s\n", h.Verdict)
		if h.Reason != "" {
			fmt.Fprintf(&sb, "Reason: %s\n", h.Reason)
		}
		if len(h.Evidence) > 0 {
			fmt.Fprintf(&sb, "Score: %s (%d signals triggered)\n", formatNumber(h.TotalScore), h.TriggeredSignals)
			writeEvidence(&sb, h.Evidence)
		}
		if h.RawResponse != "" {
			fmt.Fprintf(&sb, "\nResponse:\n%s\n", strings.TrimSpace(h.RawResponse))
		}
	}

	if rec.Playbook != "" {
		fmt.Fprintf(&sb, "\n%s\nVALIDATION PLAYBOOK\n%s\n\n%s", rule, rule, rec.Playbook)
		if !strings.HasSuffix(rec.Playbook, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeEvidence(sb *strings.Builder, entries map[string]store.EvidenceEntry) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("Evidence:\n")
	for _, name := range names {
		e := entries[name]
		mark := " "
		if e.Triggered {
			mark = "x"
		}
		fmt.Fprintf(sb, "  [%s] %s: %s/%s", mark, name, formatNumber(e.SubScore), formatNumber(e.Max))
		if e.HardFail {
			sb.WriteString(" HARD FAIL")
		}
		if e.Details != "" {
			fmt.Fprintf(sb, " (%s)", e.Details)
		}
		sb.WriteString("\n")
	}
	for _, name := range names {
		if raw := strings.TrimSpace(entries[name].RawResponse); raw != "" {
			fmt.Fprintf(sb, "\n  %s response:\n%s\n", name, indent(raw, "    "))
		}
	}
}

// Write renders rec into dir and returns the file path.
func Write(dir string, rec store.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(rec))
	if err := os.WriteFile(path, []byte(Render(rec)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

// WriteAll writes a report for each record, stopping at the first error.
func WriteAll(dir string, records []store.Record) ([]string, error) {
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		path, err := Write(dir, rec)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
