// Package verdict turns free-text reasoning responses into PASS/KILL decisions.
package verdict

import (
	"sort"
	"strings"
)

// DefaultMaxReasonLen bounds the reason captured after a marker, in runes.
const DefaultMaxReasonLen = 200

// Grammar configures the layered extractor. Stage definitions may override
// any non-empty field.
type Grammar struct {
	Markers         []string `json:"markers,omitempty" yaml:"markers,omitempty"`
	PassTokens      []string `json:"pass_tokens,omitempty" yaml:"pass_tokens,omitempty"`
	KillTokens      []string `json:"kill_tokens,omitempty" yaml:"kill_tokens,omitempty"`
	NegativePhrases []string `json:"negative_phrases,omitempty" yaml:"negative_phrases,omitempty"`
	MaxReasonLen    int      `json:"max_reason_len,omitempty" yaml:"max_reason_len,omitempty" validate:"omitempty,min=1"`
}

// DefaultGrammar returns the grammar used when a stage does not override it.
func DefaultGrammar() Grammar {
	return Grammar{
		Markers:    []string{"FINAL VERDICT", "VERDICT", "DECISION"},
		PassTokens: []string{"PASS", "PROCEED"},
		KillTokens: []string{"KILL"},
		NegativePhrases: []string{
			"not enough evidence",
			"insufficient",
			"cannot verify",
			"failed to find",
			"too vague",
			"no clear pattern",
			"does not meet",
		},
		MaxReasonLen: DefaultMaxReasonLen,
	}
}

// Override returns a copy of g with every non-empty field of o applied.
func (g Grammar) Override(o Grammar) Grammar {
	out := g
	if len(o.Markers) > 0 {
		out.Markers = o.Markers
	}
	if len(o.PassTokens) > 0 {
		out.PassTokens = o.PassTokens
	}
	if len(o.KillTokens) > 0 {
		out.KillTokens = o.KillTokens
	}
	if len(o.NegativePhrases) > 0 {
		out.NegativePhrases = o.NegativePhrases
	}
	if o.MaxReasonLen > 0 {
		out.MaxReasonLen = o.MaxReasonLen
	}
	return out
}

// markersLongestFirst orders markers so "FINAL VERDICT" is tried before "VERDICT".
func (g Grammar) markersLongestFirst() []string {
	markers := make([]string, 0, len(g.Markers))
	for _, m := range g.Markers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	sort.SliceStable(markers, func(i, j int) bool {
		return len(markers[i]) > len(markers[j])
	})
	return markers
}

func (g Grammar) decisionFor(token string) (Decision, bool) {
	for _, t := range g.PassTokens {
		if strings.EqualFold(t, token) {
			return Pass, true
		}
	}
	for _, t := range g.KillTokens {
		if strings.EqualFold(t, token) {
			return Kill, true
		}
	}
	return "", false
}

func (g Grammar) maxReasonLen() int {
	if g.MaxReasonLen > 0 {
		return g.MaxReasonLen
	}
	return DefaultMaxReasonLen
}
