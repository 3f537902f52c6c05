package config

import (
	"log/slog"
	"maps"
	"time"
)

// RegistryConfig defines the liveness policy of a registry.
type RegistryConfig struct {
	// LivenessWindow is the maximum heartbeat age for an agent to remain
	// discoverable.
	LivenessWindow Duration `json:"liveness_window" yaml:"liveness_window"`

	Observer string `json:"observer" yaml:"observer"`
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		LivenessWindow: Duration(90 * time.Second),
		Observer:       "slog",
	}
}

func (c *RegistryConfig) Merge(source *RegistryConfig) {
	if source.LivenessWindow > 0 {
		c.LivenessWindow = source.LivenessWindow
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// HubConfig defines configuration for a Hub instance.
type HubConfig struct {
	// Hub identity; also the sender id of requests it creates.
	Name string `json:"name" yaml:"name"`

	// Communication settings
	ChannelBufferSize int      `json:"channel_buffer_size" yaml:"channel_buffer_size"`
	DefaultTimeout    Duration `json:"default_timeout" yaml:"default_timeout"`

	// MaxInflight caps concurrent outbound requests across all callers.
	MaxInflight int64 `json:"max_inflight" yaml:"max_inflight"`

	// RetryBackoff is the pause before resending an undeliverable request.
	RetryBackoff Duration `json:"retry_backoff" yaml:"retry_backoff"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultHubConfig returns a HubConfig with sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Name:              "orchestrator",
		ChannelBufferSize: 100,
		DefaultTimeout:    Duration(30 * time.Second),
		MaxInflight:       64,
		RetryBackoff:      Duration(200 * time.Millisecond),
		Logger:            slog.Default(),
	}
}

func (c *HubConfig) Merge(source *HubConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.ChannelBufferSize > 0 {
		c.ChannelBufferSize = source.ChannelBufferSize
	}
	if source.DefaultTimeout > 0 {
		c.DefaultTimeout = source.DefaultTimeout
	}
	if source.MaxInflight > 0 {
		c.MaxInflight = source.MaxInflight
	}
	if source.RetryBackoff > 0 {
		c.RetryBackoff = source.RetryBackoff
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

// ParallelConfig defines configuration for concurrent fan-out.
//
// Worker Pool Sizing:
//   - MaxWorkers = 0: Auto-detect based on runtime.NumCPU() * 2, capped by WorkerCap
//   - MaxWorkers > 0: Use exact worker count, ignoring auto-detection
//
// Error Handling:
//   - FailFast = true: Stop processing on first error, cancel all workers
//   - FailFast = false: Let every item settle and collect all errors
type ParallelConfig struct {
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
	WorkerCap  int `json:"worker_cap" yaml:"worker_cap"`

	// FailFastNil controls error handling behavior. Use FailFast() to access.
	// When nil, defaults to true.
	FailFastNil *bool `json:"fail_fast" yaml:"fail_fast"`

	Observer string `json:"observer" yaml:"observer"`
}

func (c *ParallelConfig) FailFast() bool {
	if c.FailFastNil == nil {
		return true
	}
	return *c.FailFastNil
}

func DefaultParallelConfig() ParallelConfig {
	failFast := true
	return ParallelConfig{
		MaxWorkers:  0,
		WorkerCap:   16,
		FailFastNil: &failFast,
		Observer:    "slog",
	}
}

// SettleAllParallelConfig returns the defaults with fail-fast disabled, so
// that every item settles regardless of sibling failures.
func SettleAllParallelConfig() ParallelConfig {
	cfg := DefaultParallelConfig()
	failFast := false
	cfg.FailFastNil = &failFast
	return cfg
}

func (c *ParallelConfig) Merge(source *ParallelConfig) {
	if source.MaxWorkers > 0 {
		c.MaxWorkers = source.MaxWorkers
	}
	if source.WorkerCap > 0 {
		c.WorkerCap = source.WorkerCap
	}
	if source.FailFastNil != nil {
		c.FailFastNil = source.FailFastNil
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// ChainConfig defines configuration for sequential stage execution.
type ChainConfig struct {
	Observer string `json:"observer" yaml:"observer"`
}

func DefaultChainConfig() ChainConfig {
	return ChainConfig{Observer: "slog"}
}

func (c *ChainConfig) Merge(source *ChainConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// CapabilityConfig names the capabilities each pipeline stage discovers.
type CapabilityConfig struct {
	ExtractTicker string   `json:"extract_ticker" yaml:"extract_ticker"`
	Collect       []string `json:"collect" yaml:"collect"`
	Analyze       string   `json:"analyze" yaml:"analyze"`
	Report        string   `json:"report" yaml:"report"`
}

func DefaultCapabilityConfig() CapabilityConfig {
	return CapabilityConfig{
		ExtractTicker: "extract_ticker",
		Collect:       []string{"fetch_news", "fetch_social", "fetch_filings"},
		Analyze:       "analyze_sentiment",
		Report:        "generate_report",
	}
}

func (c *CapabilityConfig) Merge(source *CapabilityConfig) {
	if source.ExtractTicker != "" {
		c.ExtractTicker = source.ExtractTicker
	}
	if len(source.Collect) > 0 {
		c.Collect = source.Collect
	}
	if source.Analyze != "" {
		c.Analyze = source.Analyze
	}
	if source.Report != "" {
		c.Report = source.Report
	}
}

// StageTimeouts bound the wait on each outbound request, per stage.
type StageTimeouts struct {
	Extract Duration `json:"extract" yaml:"extract"`
	Collect Duration `json:"collect" yaml:"collect"`
	Analyze Duration `json:"analyze" yaml:"analyze"`
	Report  Duration `json:"report" yaml:"report"`
}

func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Extract: Duration(30 * time.Second),
		Collect: Duration(45 * time.Second),
		Analyze: Duration(30 * time.Second),
		Report:  Duration(60 * time.Second),
	}
}

func (c *StageTimeouts) Merge(source *StageTimeouts) {
	if source.Extract > 0 {
		c.Extract = source.Extract
	}
	if source.Collect > 0 {
		c.Collect = source.Collect
	}
	if source.Analyze > 0 {
		c.Analyze = source.Analyze
	}
	if source.Report > 0 {
		c.Report = source.Report
	}
}

// OrchestratorConfig defines the sentiment pipeline.
type OrchestratorConfig struct {
	Capabilities CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Timeouts     StageTimeouts    `json:"timeouts" yaml:"timeouts"`

	// SourceWeights weights each item source in the final score. Sources
	// absent from the map use DefaultWeight.
	SourceWeights map[string]float64 `json:"source_weights" yaml:"source_weights"`
	DefaultWeight float64            `json:"default_weight" yaml:"default_weight"`

	Parallel ParallelConfig `json:"parallel" yaml:"parallel"`
	Chain    ChainConfig    `json:"chain" yaml:"chain"`
	Observer string         `json:"observer" yaml:"observer"`
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Capabilities: DefaultCapabilityConfig(),
		Timeouts:     DefaultStageTimeouts(),
		SourceWeights: map[string]float64{
			"news":    1.0,
			"social":  0.6,
			"filings": 1.5,
		},
		DefaultWeight: 1.0,
		Parallel:      SettleAllParallelConfig(),
		Chain:         DefaultChainConfig(),
		Observer:      "slog",
	}
}

func (c *OrchestratorConfig) Merge(source *OrchestratorConfig) {
	c.Capabilities.Merge(&source.Capabilities)
	c.Timeouts.Merge(&source.Timeouts)
	c.Parallel.Merge(&source.Parallel)
	c.Chain.Merge(&source.Chain)

	if len(source.SourceWeights) > 0 {
		if c.SourceWeights == nil {
			c.SourceWeights = make(map[string]float64, len(source.SourceWeights))
		}
		maps.Copy(c.SourceWeights, source.SourceWeights)
	}
	if source.DefaultWeight > 0 {
		c.DefaultWeight = source.DefaultWeight
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// AgentConfig defines the worker runtime's registry interaction.
type AgentConfig struct {
	// HeartbeatInterval must stay below the registry liveness window.
	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	Observer          string   `json:"observer" yaml:"observer"`
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		HeartbeatInterval: Duration(30 * time.Second),
		Observer:          "slog",
	}
}

func (c *AgentConfig) Merge(source *AgentConfig) {
	if source.HeartbeatInterval > 0 {
		c.HeartbeatInterval = source.HeartbeatInterval
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// ServerConfig defines network listeners.
type ServerConfig struct {
	RegistryAddr     string   `json:"registry_addr" yaml:"registry_addr"`
	OrchestratorAddr string   `json:"orchestrator_addr" yaml:"orchestrator_addr"`
	RegistryURL      string   `json:"registry_url" yaml:"registry_url"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RegistryAddr:     ":8081",
		OrchestratorAddr: ":8080",
		RegistryURL:      "http://localhost:8081",
	}
}

func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.RegistryAddr != "" {
		c.RegistryAddr = source.RegistryAddr
	}
	if source.OrchestratorAddr != "" {
		c.OrchestratorAddr = source.OrchestratorAddr
	}
	if source.RegistryURL != "" {
		c.RegistryURL = source.RegistryURL
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
}
