package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/idea-funnel/internal/store"
)

const (
	painQuoteLen  = 80
	strongRatio   = 0.6
	moderateRatio = 0.35
)

// Playbook builds the validation plan for a finalist from its business,
// pain point and the evidence gathered on the way through the stages.
func Playbook(rec store.Record) string {
	var sb strings.Builder
	thin := strings.Repeat("-", ruleWidth)
	pain := truncateRunes(strings.TrimSpace(rec.Pain), painQuoteLen)

	fmt.Fprintf(&sb, "EVIDENCE SUMMARY\n%s\n", thin)
	writeEvidenceSummary(&sb, rec.History)

	fmt.Fprintf(&sb, "\n48-HOUR VALIDATION SPRINT\n%s\n", thin)
	fmt.Fprintf(&sb, "Day 1: outreach (4 hours)\n")
	fmt.Fprintf(&sb, "  [ ] Find 15-20 %s operators on LinkedIn and message them:\n", rec.Business)
	fmt.Fprintf(&sb, "      \"How do you currently handle %s? We're researching it and would value 2 minutes of your view.\"\n", pain)
	fmt.Fprintf(&sb, "      Target: 5 replies, 3 or more calling it painful or handled in spreadsheets.\n")
	fmt.Fprintf(&sb, "  [ ] Read forum and Reddit threads about the problem and ask 2-3 of them which tool they use.\n")
	fmt.Fprintf(&sb, "  [ ] Poll a %s community group: good tool / spreadsheets / manual / not a problem.\n", rec.Business)
	fmt.Fprintf(&sb, "      Target: 20 responses with over 40%% picking spreadsheets or manual.\n")
	fmt.Fprintf(&sb, "Day 2: competition and demand (2-3 hours)\n")
	fmt.Fprintf(&sb, "  [ ] Trial the leading tools and note where they fail on this pain.\n")
	fmt.Fprintf(&sb, "  [ ] Read 20 one-star competitor reviews and collect quotes naming the gap. Target: 5.\n")
	fmt.Fprintf(&sb, "  [ ] Optional, $50: landing page with a waitlist form and a 3-day ad aimed at %s.\n", rec.Business)
	fmt.Fprintf(&sb, "      Target: 10 signups.\n")

	fmt.Fprintf(&sb, "\nDECISION\n%s\n", thin)
	sb.WriteString("Proceed with 3 of these 4:\n")
	sb.WriteString("  [ ] 5+ operators confirm the pain\n")
	sb.WriteString("  [ ] Forums confirm no good solution exists\n")
	sb.WriteString("  [ ] Competitor trials show a clear gap\n")
	sb.WriteString("  [ ] 10+ waitlist signups\n")
	sb.WriteString("3-4 checks: build a minimum viable test. 2 checks: research one more week. 0-1 checks: kill it.\n")

	fmt.Fprintf(&sb, "\nIF VALIDATED\n%s\n", thin)
	sb.WriteString("Weeks 3-4: landing page, form and automation that test willingness to pay.\n")
	sb.WriteString("Weeks 5-6: offer the waitlist a paid pilot and collect 3 commitments.\n")
	sb.WriteString("Weeks 7-18: build the product for the committed customers only.\n")
	return sb.String()
}

func writeEvidenceSummary(sb *strings.Builder, history []store.StageResult) {
	written := false
	for _, h := range history {
		if len(h.Evidence) == 0 {
			continue
		}
		written = true

		var maxTotal float64
		names := make([]string, 0, len(h.Evidence))
		for name, e := range h.Evidence {
			maxTotal += e.Max
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(sb, "%s: %s/%s %s, %d/%d signals triggered\n",
			h.StageName, formatNumber(h.TotalScore), formatNumber(maxTotal),
			strength(h.TotalScore, maxTotal), h.TriggeredSignals, len(h.Evidence))
		for _, name := range names {
			e := h.Evidence[name]
			fmt.Fprintf(sb, "  %s: %s/%s", name, formatNumber(e.SubScore), formatNumber(e.Max))
			if e.Details != "" {
				fmt.Fprintf(sb, " (%s)", e.Details)
			}
			sb.WriteString("\n")
		}
	}
	if !written {
		sb.WriteString("No scored evidence recorded.\n")
	}
}

func strength(total, maxTotal float64) string {
	if maxTotal <= 0 {
		return "WEAK"
	}
	switch ratio := total / maxTotal; {
	case ratio >= strongRatio:
		return "STRONG"
	case ratio >= moderateRatio:
		return "MODERATE"
	default:
		return "WEAK"
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
