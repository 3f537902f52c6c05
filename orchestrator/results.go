package orchestrator

import (
	"fmt"
	"math"
	"strings"
)

// tickerFrom accepts {ticker: "..."} or a bare string. The ticker is
// normalized to upper case; anything else resolves to "".
func tickerFrom(result any) string {
	var raw any = result
	if m, ok := result.(map[string]any); ok {
		raw = m["ticker"]
	}
	ticker, _ := raw.(string)
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// itemsFrom accepts {items: [...]} or a bare list of objects and tags each
// item with its source.
func itemsFrom(result any, task collectTask) ([]Item, error) {
	var list []any
	switch v := result.(type) {
	case []any:
		list = v
	case map[string]any:
		raw, ok := v["items"]
		if !ok {
			return nil, fmt.Errorf("%w: %s result has no items", ErrMalformedResult, task.capability)
		}
		if raw == nil {
			return nil, nil
		}
		list, ok = raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s items is %T", ErrMalformedResult, task.capability, raw)
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s result is %T", ErrMalformedResult, task.capability, result)
	}

	items := make([]Item, 0, len(list))
	for _, entry := range list {
		data, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, Item{
			Source:     sourceOf(data, task.capability),
			Capability: task.capability,
			AgentID:    task.agent.AgentID,
			Data:       data,
		})
	}
	return items, nil
}

// sourceOf prefers the item's own source field and otherwise derives one
// from the capability: fetch_news -> news.
func sourceOf(data map[string]any, capability string) string {
	if source, ok := data["source"].(string); ok && strings.TrimSpace(source) != "" {
		return strings.TrimSpace(source)
	}
	return strings.TrimPrefix(capability, "fetch_")
}

// scoreFrom accepts {score: n} or a bare number.
func scoreFrom(result any) (float64, error) {
	var raw any = result
	if m, ok := result.(map[string]any); ok {
		raw = m["score"]
	}

	var score float64
	switch v := raw.(type) {
	case float64:
		score = v
	case float32:
		score = float64(v)
	case int:
		score = float64(v)
	case int64:
		score = float64(v)
	default:
		return 0, fmt.Errorf("%w: score is %T", ErrMalformedResult, raw)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: score is not finite", ErrMalformedResult)
	}
	return score, nil
}

// breakdownMap renders the breakdown with plain map and float values, the
// only shapes the Connect wire encoding accepts.
func breakdownMap(result ScoreResult) map[string]any {
	out := make(map[string]any, len(result.Breakdown))
	for _, source := range result.Sources() {
		entry := result.Breakdown[source]
		out[source] = map[string]any{
			"count":    entry.Count,
			"unscored": entry.Unscored,
			"mean":     entry.Mean,
			"min":      entry.Min,
			"max":      entry.Max,
			"weight":   entry.Weight,
		}
	}
	return out
}
