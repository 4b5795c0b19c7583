// Package evidence combines named evidence signals into a score and applies
// threshold policies to it.
package evidence

import (
	"fmt"
	"sort"
	"strings"
)

// Signal is one scored sub-check.
type Signal struct {
	Name     string
	SubScore float64
	Max      float64
	// Trigger overrides the default SubScore > 0 rule when set.
	Trigger  *bool
	HardFail bool
	Details  string
}

// Triggered reports whether the signal counts towards corroboration.
func (s Signal) Triggered() bool {
	if s.Trigger != nil {
		return *s.Trigger
	}
	return s.clamped() > 0
}

func (s Signal) clamped() float64 {
	switch {
	case s.SubScore < 0:
		return 0
	case s.Max > 0 && s.SubScore > s.Max:
		return s.Max
	default:
		return s.SubScore
	}
}

// Result is the aggregate of a signal set.
type Result struct {
	Total          float64
	MaxTotal       float64
	TriggeredCount int
	SignalCount    int
	// HardFails lists failing signal names in sorted order.
	HardFails []string
	Signals   map[string]Signal
}

// Score sums clamped sub-scores and counts triggered signals.
func Score(signals map[string]Signal) Result {
	res := Result{
		SignalCount: len(signals),
		Signals:     make(map[string]Signal, len(signals)),
	}
	for name, s := range signals {
		if s.Name == "" {
			s.Name = name
		}
		s.SubScore = s.clamped()
		res.Signals[name] = s
		res.Total += s.SubScore
		res.MaxTotal += s.Max
		if s.Triggered() {
			res.TriggeredCount++
		}
		if s.HardFail {
			res.HardFails = append(res.HardFails, name)
		}
	}
	sort.Strings(res.HardFails)
	return res
}

// Policy is a stage's pass threshold. All conditions must hold.
type Policy struct {
	ScoreThreshold  float64
	SignalThreshold int
}

// Decision is the policy outcome.
type Decision struct {
	Pass   bool
	Reason string
}

// Decide applies p to r. Hard fails are reported first, then a weak total,
// then too few triggered signals.
func (p Policy) Decide(r Result) Decision {
	if len(r.HardFails) > 0 {
		return Decision{Reason: "hard fail: " + strings.Join(r.HardFails, ", ")}
	}
	if r.Total < p.ScoreThreshold {
		return Decision{Reason: fmt.Sprintf("evidence too weak (%s/%s)", formatScore(r.Total), formatScore(p.ScoreThreshold))}
	}
	if r.TriggeredCount < p.SignalThreshold {
		return Decision{Reason: fmt.Sprintf("too few signals triggered (%d/%d)", r.TriggeredCount, p.SignalThreshold)}
	}
	return Decision{
		Pass:   true,
		Reason: fmt.Sprintf("score %s/%s with %d/%d signals", formatScore(r.Total), formatScore(r.MaxTotal), r.TriggeredCount, r.SignalCount),
	}
}

// formatScore prints whole numbers without a fractional part.
func formatScore(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.1f", f)
}
