package orchestrator

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Stage is a session state.
type Stage string

const (
	StageReceived         Stage = "received"
	StageExtractTicker    Stage = "extract_ticker"
	StageCollectData      Stage = "collect_data"
	StageAnalyzeSentiment Stage = "analyze_sentiment"
	StageCalculateScore   Stage = "calculate_score"
	StageGenerateReport   Stage = "generate_report"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// pipelineStages lists the working stages in execution order.
var pipelineStages = []Stage{
	StageExtractTicker,
	StageCollectData,
	StageAnalyzeSentiment,
	StageCalculateScore,
	StageGenerateReport,
}

func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

func (s Stage) order() int {
	switch s {
	case StageReceived:
		return 0
	case StageExtractTicker:
		return 1
	case StageCollectData:
		return 2
	case StageAnalyzeSentiment:
		return 3
	case StageCalculateScore:
		return 4
	case StageGenerateReport:
		return 5
	case StageDone:
		return 6
	default:
		return -1
	}
}

// Item is one collected data point, tagged by the source it came from.
// Score is nil until analysis succeeds for it.
type Item struct {
	Source     string
	Capability string
	AgentID    string
	Data       map[string]any
	Score      *float64
}

// Annotated renders the item as sent to the report capability: the
// original fields plus source and score.
func (i Item) Annotated() map[string]any {
	out := maps.Clone(i.Data)
	if out == nil {
		out = make(map[string]any)
	}
	out["source"] = i.Source
	if i.Score != nil {
		out["score"] = *i.Score
	} else {
		out["score"] = nil
	}
	return out
}

// Failure records one excluded request for audit.
type Failure struct {
	Stage      Stage
	Capability string
	AgentID    string
	Err        error
}

// Session is the per-query pipeline state. It is owned by a single
// goroutine and never shared.
type Session struct {
	ID     string
	Query  string
	Ticker string

	Items    []Item
	Failures []Failure

	Score  ScoreResult
	Report any

	Stage Stage
	Err   error
}

func newSession(query string) *Session {
	return &Session{
		ID:    uuid.NewString(),
		Query: query,
		Stage: StageReceived,
	}
}

// advance moves the session forward. Stages may not repeat, go backwards,
// or leave a terminal state.
func (s *Session) advance(next Stage) error {
	if s.Stage.IsTerminal() {
		return fmt.Errorf("session %s is already %s", s.ID, s.Stage)
	}
	if next != StageFailed && next.order() <= s.Stage.order() {
		return fmt.Errorf("invalid transition %s -> %s", s.Stage, next)
	}
	s.Stage = next
	return nil
}

func (s *Session) fail(err error) {
	if s.Stage.IsTerminal() {
		return
	}
	s.Err = err
	s.Stage = StageFailed
}

// ScoredItems counts items that carry a score.
func (s *Session) ScoredItems() int {
	n := 0
	for _, item := range s.Items {
		if item.Score != nil {
			n++
		}
	}
	return n
}
