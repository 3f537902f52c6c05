// Package demo provides deterministic stand-ins for every pipeline
// capability. They call no external service, so a full session can run
// offline: the same ticker always yields the same items and scores.
package demo

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/tailored-agentic-units/sentiment/agent"
	"github.com/tailored-agentic-units/sentiment/registry"
)

var companies = map[string]string{
	"apple":     "AAPL",
	"microsoft": "MSFT",
	"tesla":     "TSLA",
	"nvidia":    "NVDA",
	"amazon":    "AMZN",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
	"meta":      "META",
	"netflix":   "NFLX",
}

var (
	tickerPattern = regexp.MustCompile(`\$?\b([A-Z]{2,5})\b`)
	notTickers    = map[string]bool{"AI": true, "CEO": true, "IPO": true, "ETF": true, "USA": true, "USD": true, "THE": true}
)

// ExtractTicker resolves {query} to {ticker}. Known company names win over
// upper-case tokens; an unresolvable query yields an empty ticker.
func ExtractTicker(ctx context.Context, payload map[string]any) (any, error) {
	query, _ := payload["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", agent.ErrInvalidPayload)
	}

	lower := strings.ToLower(query)
	for name, ticker := range companies {
		if strings.Contains(lower, name) {
			return map[string]any{"ticker": ticker}, nil
		}
	}
	for _, match := range tickerPattern.FindAllStringSubmatch(query, -1) {
		if !notTickers[match[1]] {
			return map[string]any{"ticker": match[1]}, nil
		}
	}
	return map[string]any{"ticker": ""}, nil
}

var (
	headlines = []string{
		"%s beats earnings estimates on strong cloud growth",
		"%s faces lawsuit over supply chain practices",
		"Analysts upgrade %s after record quarter",
		"%s shares decline as guidance disappoints",
		"%s announces buyback, investors cheer",
		"Regulators open probe into %s pricing",
	}
	posts = []string{
		"loading up on more $%s, this is going to surge",
		"$%s looks weak here, thinking about a sell",
		"holding $%s long term, solid company",
		"$%s bullish breakout incoming",
		"not sure about $%s after that miss",
	}
	filings = []string{
		"%s 10-Q: revenue growth accelerated year over year",
		"%s 8-K: executive departure announced",
		"%s 10-K: record free cash flow",
		"%s 8-K: product recall disclosed",
	}
)

func pick(ticker, salt string, pool []string, n int) []any {
	h := fnv.New32a()
	h.Write([]byte(ticker + salt))
	offset := int(h.Sum32() % uint32(len(pool)))

	items := make([]any, 0, n)
	for i := range n {
		items = append(items, fmt.Sprintf(pool[(offset+i)%len(pool)], ticker))
	}
	return items
}

func fetcher(source, field string, pool []string, n int) agent.Handler {
	return func(ctx context.Context, payload map[string]any) (any, error) {
		ticker, _ := payload["ticker"].(string)
		if ticker == "" {
			return nil, fmt.Errorf("%w: ticker is required", agent.ErrInvalidPayload)
		}
		texts := pick(ticker, source, pool, n)
		items := make([]any, len(texts))
		for i, text := range texts {
			items[i] = map[string]any{
				"source": source,
				field:    text,
			}
		}
		return map[string]any{"items": items}, nil
	}
}

var (
	FetchNews    = fetcher("news", "headline", headlines, 3)
	FetchSocial  = fetcher("social", "post", posts, 3)
	FetchFilings = fetcher("filings", "summary", filings, 2)
)

var lexicon = map[string]float64{
	"beats": 1, "strong": 1, "growth": 1, "upgrade": 1, "record": 1,
	"cheer": 1, "surge": 1, "solid": 1, "bullish": 1, "buyback": 0.5,
	"accelerated": 1,
	"lawsuit": -1, "decline": -1, "disappoints": -1, "probe": -1,
	"weak": -1, "sell": -1, "miss": -1, "departure": -0.5, "recall": -1,
}

var wordPattern = regexp.MustCompile(`[a-z0-9-]+`)

// AnalyzeSentiment scores {item} in [-1, 1] with a small word lexicon.
func AnalyzeSentiment(ctx context.Context, payload map[string]any) (any, error) {
	item, ok := payload["item"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: item is required", agent.ErrInvalidPayload)
	}

	var text strings.Builder
	for _, field := range []string{"headline", "post", "summary", "text", "title"} {
		if s, ok := item[field].(string); ok {
			text.WriteString(s)
			text.WriteByte(' ')
		}
	}

	var sum float64
	hits := 0
	for _, word := range wordPattern.FindAllString(strings.ToLower(text.String()), -1) {
		if weight, ok := lexicon[word]; ok {
			sum += weight
			hits++
		}
	}
	if hits == 0 {
		return map[string]any{"score": 0.0}, nil
	}
	return map[string]any{"score": max(-1, min(1, sum/float64(hits)))}, nil
}

// GenerateReport turns {ticker, final_score, items, breakdown} into the
// session's final report.
func GenerateReport(ctx context.Context, payload map[string]any) (any, error) {
	ticker, _ := payload["ticker"].(string)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", agent.ErrInvalidPayload)
	}

	var score float64
	switch v := payload["final_score"].(type) {
	case float64:
		score = v
	case int:
		score = float64(v)
	}
	items, _ := payload["items"].([]any)

	label := "neutral"
	switch {
	case score >= 20:
		label = "bullish"
	case score <= -20:
		label = "bearish"
	}

	return map[string]any{
		"ticker":      ticker,
		"final_score": score,
		"sentiment":   label,
		"item_count":  len(items),
		"breakdown":   payload["breakdown"],
		"summary": fmt.Sprintf("Sentiment for %s is %s (%+.0f) across %d items.",
			ticker, label, score, len(items)),
	}, nil
}

func capability(name, description string) registry.Capability {
	return registry.Capability{Name: name, Version: "1.0", Description: description}
}

// Agents builds one agent per demo capability.
func Agents(opts ...agent.Option) ([]*agent.Agent, error) {
	specs := []struct {
		info    registry.AgentInfo
		handler agent.Handler
	}{
		{registry.AgentInfo{Name: "ticker-extractor", Description: "Resolves a query to a ticker symbol",
			Capabilities: []registry.Capability{capability("extract_ticker", "query to ticker")}}, ExtractTicker},
		{registry.AgentInfo{Name: "news-agent", Description: "Recent headlines",
			Capabilities: []registry.Capability{capability("fetch_news", "news headlines for a ticker")}}, FetchNews},
		{registry.AgentInfo{Name: "social-agent", Description: "Social media posts",
			Capabilities: []registry.Capability{capability("fetch_social", "social posts for a ticker")}}, FetchSocial},
		{registry.AgentInfo{Name: "filings-agent", Description: "Regulatory filings",
			Capabilities: []registry.Capability{capability("fetch_filings", "filing summaries for a ticker")}}, FetchFilings},
		{registry.AgentInfo{Name: "sentiment-analyzer", Description: "Lexicon sentiment scoring",
			Capabilities: []registry.Capability{capability("analyze_sentiment", "item to score in [-1, 1]")}}, AnalyzeSentiment},
		{registry.AgentInfo{Name: "report-writer", Description: "Final report",
			Capabilities: []registry.Capability{capability("generate_report", "scored items to report")}}, GenerateReport},
	}

	agents := make([]*agent.Agent, 0, len(specs))
	for _, spec := range specs {
		name := spec.info.Capabilities[0].Name
		a, err := agent.New(spec.info, map[string]agent.Handler{name: spec.handler}, opts...)
		if err != nil {
			return nil, fmt.Errorf("demo agent %s: %w", spec.info.Name, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}
