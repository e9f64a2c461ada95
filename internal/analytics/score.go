// Package analytics re-derives the per-trade and per-goal figures every
// view displays, so two renderings of the same record never disagree.
package analytics

import "trade-journal/internal/journal"

// Score weights
const (
	WinPoints       = 30
	BreakevenPoints = 15
	ExecutionPoints = 10 // per flag
	JournalPoints   = 5  // per flag
	MaxRating       = 10
	MaxScore        = 100
)

// QualityScore grades a trade 0-100: profitability, four execution flags,
// four journaling flags and the trader's own 0-10 rating.
func QualityScore(t journal.Trade) int {
	score := 0
	switch {
	case t.NetProfit > 0:
		score += WinPoints
	case t.NetProfit == 0:
		score += BreakevenPoints
	}

	score += t.Execution.Count() * ExecutionPoints
	score += t.Journal.Count() * JournalPoints
	score += clamp(t.Rating, 0, MaxRating)

	return clamp(score, 0, MaxScore)
}

// ScoreGrade maps a score to the label shown next to it
func ScoreGrade(score int) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}

// Progress of a goal
type Progress struct {
	Percent   float64 `json:"progress"`
	Remaining float64 `json:"remaining"`
	Achieved  bool    `json:"achieved"`
}

// GoalProgress returns (current/target)*100 and max(0, target-current).
// A non-positive target has zero progress.
func GoalProgress(target, current float64) Progress {
	p := Progress{}
	if target > 0 {
		p.Percent = current / target * 100
		p.Achieved = current >= target
	}
	if rem := target - current; rem > 0 {
		p.Remaining = rem
	}
	return p
}

// GoalWithProgress is a goal enriched for display
type GoalWithProgress struct {
	journal.Goal
	Progress
}

func EnrichGoals(goals []journal.Goal) []GoalWithProgress {
	out := make([]GoalWithProgress, len(goals))
	for i, g := range goals {
		out[i] = GoalWithProgress{Goal: g, Progress: GoalProgress(g.TargetAmount, g.CurrentAmount)}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
