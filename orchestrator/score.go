package orchestrator

import (
	"math"
	"slices"
)

// SourceBreakdown summarizes the scored items of one source.
type SourceBreakdown struct {
	Count    int     `json:"count"`
	Unscored int     `json:"unscored"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Weight   float64 `json:"weight"`
}

// ScoreResult is the outcome of CalculateScore. Final is in [-100, 100].
type ScoreResult struct {
	Final     int                        `json:"final_score"`
	Scored    int                        `json:"scored"`
	Breakdown map[string]SourceBreakdown `json:"breakdown"`
}

// Empty reports whether no item contributed to Final.
func (r ScoreResult) Empty() bool {
	return r.Scored == 0
}

// Weights resolves the weight of each source.
type Weights struct {
	BySource map[string]float64
	Default  float64
}

func (w Weights) For(source string) float64 {
	if weight, ok := w.BySource[source]; ok && weight > 0 {
		return weight
	}
	if w.Default > 0 {
		return w.Default
	}
	return 1
}

// CalculateScore aggregates item scores into a weighted final score:
// round_half_up(100 * sum(score*weight) / sum(weight)), clamped to
// [-100, 100]. Items without a score are counted as unscored and excluded.
// With nothing to aggregate Final is 0.
func CalculateScore(items []Item, weights Weights) ScoreResult {
	result := ScoreResult{Breakdown: make(map[string]SourceBreakdown)}

	var weightedSum, weightTotal float64
	sums := make(map[string]float64)

	for _, item := range items {
		entry, seen := result.Breakdown[item.Source]
		if !seen {
			entry.Weight = weights.For(item.Source)
		}

		if item.Score == nil || math.IsNaN(*item.Score) || math.IsInf(*item.Score, 0) {
			entry.Unscored++
			result.Breakdown[item.Source] = entry
			continue
		}

		score := *item.Score
		if entry.Count == 0 {
			entry.Min, entry.Max = score, score
		} else {
			entry.Min = min(entry.Min, score)
			entry.Max = max(entry.Max, score)
		}
		entry.Count++
		sums[item.Source] += score
		result.Breakdown[item.Source] = entry

		weightedSum += score * entry.Weight
		weightTotal += entry.Weight
		result.Scored++
	}

	for source, entry := range result.Breakdown {
		if entry.Count > 0 {
			entry.Mean = sums[source] / float64(entry.Count)
			result.Breakdown[source] = entry
		}
	}

	if weightTotal > 0 {
		result.Final = clamp(roundHalfUp(100*weightedSum/weightTotal), -100, 100)
	}

	return result
}

// Sources returns the breakdown keys in sorted order.
func (r ScoreResult) Sources() []string {
	sources := make([]string, 0, len(r.Breakdown))
	for source := range r.Breakdown {
		sources = append(sources, source)
	}
	slices.Sort(sources)
	return sources
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
