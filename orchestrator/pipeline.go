package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/hub"
	"github.com/tailored-agentic-units/sentiment/observability"
	"github.com/tailored-agentic-units/sentiment/registry"
	"github.com/tailored-agentic-units/sentiment/workflows"
)

const pipelineSource = "orchestrator.Pipeline"

// ErrMalformedResult marks an agent result that does not have the shape its
// capability promises.
var ErrMalformedResult = errors.New("malformed agent result")

// Pipeline drives sessions through the sentiment stages. It holds no
// per-session state and is safe for concurrent Run calls.
type Pipeline struct {
	directory registry.Directory
	hub       hub.Hub
	cfg       config.OrchestratorConfig
	weights   Weights

	logger   *slog.Logger
	observer observability.Observer

	// round-robin cursor over analyzer agents
	cursor atomic.Uint64
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New builds a pipeline. cfg is merged over DefaultOrchestratorConfig, so
// unset fields keep their defaults.
func New(directory registry.Directory, h hub.Hub, cfg config.OrchestratorConfig, opts ...Option) (*Pipeline, error) {
	if directory == nil {
		return nil, fmt.Errorf("%w: directory is required", ErrRegistryUnavailable)
	}
	if h == nil {
		return nil, errors.New("hub is required")
	}

	merged := config.DefaultOrchestratorConfig()
	merged.Merge(&cfg)

	observer, err := observability.ResolveObserver(merged.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	p := &Pipeline{
		directory: directory,
		hub:       h,
		cfg:       merged,
		weights:   Weights{BySource: merged.SourceWeights, Default: merged.DefaultWeight},
		logger:    slog.Default(),
		observer:  observer,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "orchestrator")

	return p, nil
}

// Run executes one query end to end and returns the final session. Exactly
// one terminal message (result or error) is offered to out. Once out reports
// the client gone no further stage starts; requests already dispatched are
// left to settle.
func (p *Pipeline) Run(ctx context.Context, query string, out *Stream) *Session {
	session := newSession(query)
	logger := p.logger.With("session_id", session.ID)
	start := time.Now()

	observability.Emit(ctx, p.observer, EventSessionStart, observability.LevelInfo, pipelineSource, map[string]any{
		"session_id": session.ID,
	})
	out.status(session)

	_, err := workflows.ProcessChain(ctx, p.cfg.Chain, pipelineStages, session,
		func(ctx context.Context, stage Stage, s *Session) (*Session, error) {
			if out.Gone() {
				return s, &StageError{Stage: stage, Err: ErrClientGone}
			}
			if err := s.advance(stage); err != nil {
				return s, &StageError{Stage: stage, Err: err}
			}
			out.status(s)

			observability.Emit(ctx, p.observer, EventStageStart, observability.LevelVerbose, pipelineSource, map[string]any{
				"session_id": s.ID,
				"stage":      string(stage),
			})
			err := p.runStage(ctx, stage, s, out)
			observability.Emit(ctx, p.observer, EventStageComplete, observability.LevelVerbose, pipelineSource, map[string]any{
				"session_id": s.ID,
				"stage":      string(stage),
				"error":      err != nil,
			})
			if err != nil {
				return s, &StageError{Stage: stage, Err: err}
			}
			return s, nil
		},
		func(completed, total int, s *Session) {
			logger.Debug("stage complete", "stage", s.Stage, "completed", completed, "total", total)
		})

	if err != nil {
		stage := session.Stage
		cause := err
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			stage, cause = stageErr.Stage, stageErr.Err
		}
		session.fail(err)

		code := ErrorCode(err)
		logger.Warn("session failed", "stage", stage, "code", code, "error", cause)
		out.Send(StreamMessage{Type: TypeError, Payload: map[string]any{
			"code":    code,
			"message": cause.Error(),
			"stage":   string(stage),
		}})
	} else {
		if err := session.advance(StageDone); err != nil {
			logger.Error("session not completed", "error", err)
		}
		logger.Info("session complete",
			"ticker", session.Ticker,
			"final_score", session.Score.Final,
			"items", len(session.Items),
			"failures", len(session.Failures))
		out.Send(StreamMessage{Type: TypeResult, Payload: session.Report})
	}

	observability.Emit(ctx, p.observer, EventSessionComplete, observability.LevelInfo, pipelineSource, map[string]any{
		"session_id":  session.ID,
		"stage":       string(session.Stage),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return session
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, s *Session, out *Stream) error {
	switch stage {
	case StageExtractTicker:
		return p.extractTicker(ctx, s)
	case StageCollectData:
		return p.collectData(ctx, s, out)
	case StageAnalyzeSentiment:
		return p.analyzeSentiment(ctx, s, out)
	case StageCalculateScore:
		return p.calculateScore(s, out)
	case StageGenerateReport:
		return p.generateReport(ctx, s)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// discover resolves live agents for capability. A failing directory is
// stage-fatal; an empty result is not an error here.
func (p *Pipeline) discover(ctx context.Context, capability string) ([]registry.AgentInfo, error) {
	agents, err := p.directory.Discover(ctx, capability)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return agents, nil
}

func (p *Pipeline) require(ctx context.Context, capability string) (registry.AgentInfo, error) {
	agents, err := p.discover(ctx, capability)
	if err != nil {
		return registry.AgentInfo{}, err
	}
	if len(agents) == 0 {
		return registry.AgentInfo{}, fmt.Errorf("%w: %s", ErrCapabilityUnavailable, capability)
	}
	return agents[0], nil
}

func (p *Pipeline) call(ctx context.Context, timeout config.Duration, target registry.AgentInfo, capability string, payload map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.Std())
	defer cancel()
	return p.hub.Call(ctx, target, capability, payload)
}

func (p *Pipeline) extractTicker(ctx context.Context, s *Session) error {
	capability := p.cfg.Capabilities.ExtractTicker
	target, err := p.require(ctx, capability)
	if err != nil {
		return err
	}

	result, err := p.call(ctx, p.cfg.Timeouts.Extract, target, capability, map[string]any{"query": s.Query})
	if err != nil {
		return err
	}

	ticker := tickerFrom(result)
	if ticker == "" {
		return fmt.Errorf("%w: %q", ErrTickerNotResolved, s.Query)
	}
	s.Ticker = ticker
	return nil
}

type collectTask struct {
	capability string
	agent      registry.AgentInfo
}

func (p *Pipeline) collectData(ctx context.Context, s *Session, out *Stream) error {
	var tasks []collectTask
	for _, capability := range p.cfg.Capabilities.Collect {
		agents, err := p.discover(ctx, capability)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			out.log(s, "warning", fmt.Sprintf("no agents available for %s", capability))
			continue
		}
		for _, agent := range agents {
			tasks = append(tasks, collectTask{capability: capability, agent: agent})
		}
	}

	if len(tasks) == 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, strings.Join(p.cfg.Capabilities.Collect, ", "))
	}

	payload := map[string]any{"ticker": s.Ticker}

	// An error here means every request failed; that degrades the report
	// but does not end the session.
	result, _ := workflows.ProcessParallel(ctx, p.fanOut(len(tasks)), tasks,
		func(ctx context.Context, task collectTask) ([]Item, error) {
			raw, err := p.call(ctx, p.cfg.Timeouts.Collect, task.agent, task.capability, payload)
			if err != nil {
				return nil, err
			}
			return itemsFrom(raw, task)
		},
		func(completed, total int, settlement workflows.Settlement[collectTask, []Item]) {
			task := settlement.Item
			if settlement.Failed() {
				s.Failures = append(s.Failures, Failure{
					Stage:      StageCollectData,
					Capability: task.capability,
					AgentID:    task.agent.AgentID,
					Err:        settlement.Err,
				})
				out.log(s, "warning", fmt.Sprintf("[%d/%d] %s from %s failed: %v",
					completed, total, task.capability, task.agent.Name, settlement.Err))
				return
			}
			out.log(s, "info", fmt.Sprintf("[%d/%d] %s from %s returned %d items",
				completed, total, task.capability, task.agent.Name, len(settlement.Result)))
		})

	for _, items := range result.Results {
		s.Items = append(s.Items, items...)
	}
	return nil
}

type analyzeTask struct {
	index   int
	agent   registry.AgentInfo
	payload map[string]any
}

func (p *Pipeline) analyzeSentiment(ctx context.Context, s *Session, out *Stream) error {
	if len(s.Items) == 0 {
		out.log(s, "warning", "no items collected; nothing to analyze")
		return nil
	}

	capability := p.cfg.Capabilities.Analyze
	agents, err := p.discover(ctx, capability)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		out.log(s, "warning", fmt.Sprintf("no agents available for %s; items left unscored", capability))
		return nil
	}

	tasks := make([]analyzeTask, len(s.Items))
	for i, item := range s.Items {
		tasks[i] = analyzeTask{
			index: i,
			agent: p.nextAgent(agents),
			payload: map[string]any{
				"ticker": s.Ticker,
				"item":   item.Annotated(),
			},
		}
	}

	failed := 0
	_, _ = workflows.ProcessParallel(ctx, p.fanOut(len(tasks)), tasks,
		func(ctx context.Context, task analyzeTask) (float64, error) {
			raw, err := p.call(ctx, p.cfg.Timeouts.Analyze, task.agent, capability, task.payload)
			if err != nil {
				return 0, err
			}
			return scoreFrom(raw)
		},
		func(completed, total int, settlement workflows.Settlement[analyzeTask, float64]) {
			task := settlement.Item
			if settlement.Failed() {
				failed++
				s.Failures = append(s.Failures, Failure{
					Stage:      StageAnalyzeSentiment,
					Capability: capability,
					AgentID:    task.agent.AgentID,
					Err:        settlement.Err,
				})
				out.log(s, "warning", fmt.Sprintf("analysis of item %d failed: %v", task.index+1, settlement.Err))
				return
			}
			score := settlement.Result
			s.Items[task.index].Score = &score
		})

	out.log(s, "info", fmt.Sprintf("analyzed %d of %d items", len(tasks)-failed, len(tasks)))
	return nil
}

// fanOut sizes a stage's dispatch: every request settles on its own and all
// of them are in flight at once, up to WorkerCap. MaxWorkers and fail_fast
// do not apply here; the hub's MaxInflight bounds outbound load.
func (p *Pipeline) fanOut(requests int) config.ParallelConfig {
	cfg := p.cfg.Parallel
	settleAll := false
	cfg.FailFastNil = &settleAll

	cfg.MaxWorkers = requests
	if cfg.WorkerCap > 0 && cfg.MaxWorkers > cfg.WorkerCap {
		cfg.MaxWorkers = cfg.WorkerCap
	}
	return cfg
}

func (p *Pipeline) nextAgent(agents []registry.AgentInfo) registry.AgentInfo {
	n := p.cursor.Add(1) - 1
	return agents[n%uint64(len(agents))]
}

func (p *Pipeline) calculateScore(s *Session, out *Stream) error {
	s.Score = CalculateScore(s.Items, p.weights)
	if s.Score.Empty() {
		p.logger.Warn("score defaulted to zero", "session_id", s.ID, "error", ErrAggregationEmpty)
		out.log(s, "warning", fmt.Sprintf("%v; final score is 0", ErrAggregationEmpty))
	}

	out.Send(StreamMessage{Type: TypeChartUpdate, Payload: map[string]any{
		"session_id":  s.ID,
		"ticker":      s.Ticker,
		"final_score": s.Score.Final,
		"scored":      s.Score.Scored,
		"breakdown":   breakdownMap(s.Score),
	}})
	return nil
}

func (p *Pipeline) generateReport(ctx context.Context, s *Session) error {
	capability := p.cfg.Capabilities.Report
	target, err := p.require(ctx, capability)
	if err != nil {
		return err
	}

	items := make([]any, len(s.Items))
	for i, item := range s.Items {
		items[i] = item.Annotated()
	}

	report, err := p.call(ctx, p.cfg.Timeouts.Report, target, capability, map[string]any{
		"ticker":      s.Ticker,
		"final_score": s.Score.Final,
		"items":       items,
		"breakdown":   breakdownMap(s.Score),
	})
	if err != nil {
		return err
	}
	s.Report = report
	return nil
}
