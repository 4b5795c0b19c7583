package verdict

import (
	"fmt"
	"strings"
	"unicode"
)

// Decision is the outcome of one stage evaluation.
type Decision string

const (
	Pass    Decision = "PASS"
	Kill    Decision = "KILL"
	Unclear Decision = "UNCLEAR"
)

// Source records which grammar layer produced a verdict.
type Source string

const (
	SourceMarker      Source = "marker"
	SourceNegative    Source = "negative_phrase"
	SourceAffirmative Source = "affirmative_token"
	SourceDefault     Source = "default"
)

// ReasonNoVerdict is the reason attached to the fail-closed default.
const ReasonNoVerdict = "no explicit verdict found"

// Verdict is the structured reading of a raw response.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
	// Evidence is the line of raw text the decision was read from.
	Evidence string `json:"evidence,omitempty"`
	Source   Source `json:"source"`
	// Ambiguous is set when no layer matched and the default KILL applied.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Extract applies the default grammar to raw.
func Extract(raw string) Verdict {
	return DefaultGrammar().Extract(raw)
}

// Extract reads a decision from raw text. Layers are tried in order:
// explicit marker lines (last one wins), negative phrases, affirmative
// tokens, and finally a KILL default. It never returns an empty decision.
func (g Grammar) Extract(raw string) Verdict {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	if v, ok := g.fromMarkers(lines); ok {
		return v
	}

	lower := strings.ToLower(raw)
	for _, phrase := range g.NegativePhrases {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" || !strings.Contains(lower, p) {
			continue
		}
		return Verdict{
			Decision: Kill,
			Reason:   fmt.Sprintf("negative phrase %q", p),
			Evidence: g.bound(lineContaining(lines, p)),
			Source:   SourceNegative,
		}
	}

	if token, ok := g.affirmativeOnly(raw); ok {
		return Verdict{
			Decision: Pass,
			Reason:   fmt.Sprintf("affirmative token %s without marker", token),
			Evidence: g.bound(lineWithWord(lines, token)),
			Source:   SourceAffirmative,
		}
	}

	return Verdict{
		Decision:  Kill,
		Reason:    ReasonNoVerdict,
		Source:    SourceDefault,
		Ambiguous: true,
	}
}

func (g Grammar) fromMarkers(lines []string) (Verdict, bool) {
	markers := g.markersLongestFirst()
	var found Verdict
	ok := false

	for i, line := range lines {
		rest, matched := matchMarker(line, markers)
		if !matched {
			continue
		}
		if rest == "" {
			// "VERDICT:" on its own line, decision on the next one.
			if next := nextNonEmpty(lines, i+1); next != "" {
				rest = strings.TrimLeft(next, lineDecoration)
			}
		}
		decision, reason, parsed := g.parseDecision(rest)
		if !parsed {
			continue
		}
		found = Verdict{
			Decision: decision,
			Reason:   g.bound(reason),
			Evidence: g.bound(strings.TrimSpace(line)),
			Source:   SourceMarker,
		}
		ok = true
	}
	return found, ok
}

const (
	lineDecoration  = " \t#*>_-`•"
	tokenDecoration = " \t*_`"
	separators      = ":-="
	echoOpeners     = "[<{("
)

// matchMarker reports whether line begins with one of markers followed by a
// separator, and returns the text after the separator.
func matchMarker(line string, markers []string) (string, bool) {
	s := strings.TrimLeftFunc(line, func(r rune) bool {
		return strings.ContainsRune(lineDecoration, r) || unicode.IsSymbol(r) || unicode.IsMark(r)
	})
	for _, m := range markers {
		if len(s) < len(m) || !strings.EqualFold(s[:len(m)], m) {
			continue
		}
		after := strings.TrimLeft(s[len(m):], tokenDecoration)
		if after == "" || !strings.ContainsRune(separators, rune(after[0])) {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(after[1:], tokenDecoration)), true
	}
	return "", false
}

// parseDecision reads the leading token of rest. Template echoes such as
// "[PASS or KILL]" or "PASS/KILL" are rejected.
func (g Grammar) parseDecision(rest string) (Decision, string, bool) {
	rest = strings.TrimLeftFunc(rest, isDecisionDecoration)
	if rest == "" || strings.ContainsRune(echoOpeners, rune(rest[0])) {
		return "", "", false
	}

	end := strings.IndexFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		end = len(rest)
	}
	decision, ok := g.decisionFor(rest[:end])
	if !ok {
		return "", "", false
	}

	tail := strings.TrimLeft(rest[end:], tokenDecoration)
	upperTail := strings.ToUpper(tail)
	if strings.HasPrefix(upperTail, "OR ") || strings.HasPrefix(tail, "/") || strings.HasPrefix(tail, "|") {
		return "", "", false
	}

	reason := strings.TrimLeft(tail, " \t-–—:=,;(*_`")
	reason = strings.TrimRight(reason, " \t*_`")
	return decision, reason, true
}

// isDecisionDecoration matches emoji, symbols and punctuation written
// before the decision token, as in "✅ PASS". Echo openers are kept.
func isDecisionDecoration(r rune) bool {
	if strings.ContainsRune(echoOpeners, r) {
		return false
	}
	return unicode.IsSpace(r) || unicode.IsSymbol(r) || unicode.IsPunct(r) || unicode.IsMark(r)
}

// affirmativeOnly finds an upper-case whole-word pass token. Text that also
// carries an upper-case kill token is treated as ambiguous.
func (g Grammar) affirmativeOnly(raw string) (string, bool) {
	words := splitWords(raw)
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}
	for _, k := range g.KillTokens {
		if present[strings.ToUpper(k)] {
			return "", false
		}
	}
	for _, p := range g.PassTokens {
		if token := strings.ToUpper(p); present[token] {
			return token, true
		}
	}
	return "", false
}

func (g Grammar) bound(s string) string {
	limit := g.maxReasonLen()
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func lineContaining(lines []string, lowerNeedle string) string {
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), lowerNeedle) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func lineWithWord(lines []string, word string) string {
	for _, line := range lines {
		for _, w := range splitWords(line) {
			if w == word {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func nextNonEmpty(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
