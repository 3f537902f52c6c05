package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/sentiment/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if got := cfg.Registry.LivenessWindow.Std(); got != 90*time.Second {
		t.Errorf("LivenessWindow = %v, want 90s", got)
	}
	if cfg.Hub.MaxInflight != 64 {
		t.Errorf("MaxInflight = %d, want 64", cfg.Hub.MaxInflight)
	}
	if cfg.Orchestrator.Parallel.FailFast() {
		t.Error("orchestrator fan-out should settle every item by default")
	}
	if got := cfg.Orchestrator.SourceWeights["filings"]; got != 1.5 {
		t.Errorf("filings weight = %v, want 1.5", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDuration_Codecs(t *testing.T) {
	tests := []struct {
		name string
		json string
		want time.Duration
	}{
		{name: "duration string", json: `"45s"`, want: 45 * time.Second},
		{name: "compound string", json: `"1m30s"`, want: 90 * time.Second},
		{name: "numeric seconds", json: `2.5`, want: 2500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d config.Duration
			if err := json.Unmarshal([]byte(tt.json), &d); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.json, err)
			}
			if d.Std() != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.json, d.Std(), tt.want)
			}
		})
	}

	var bad config.Duration
	if err := json.Unmarshal([]byte(`"soon"`), &bad); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentiment.yaml")
	content := `
logging:
  format: json
registry:
  liveness_window: 2m
hub:
  max_inflight: 8
orchestrator:
  timeouts:
    collect: 10s
  source_weights:
    social: 0.25
  parallel:
    max_workers: 4
agent:
  heartbeat_interval: 15s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Registry.LivenessWindow.Std() != 2*time.Minute {
		t.Errorf("LivenessWindow = %v, want 2m", cfg.Registry.LivenessWindow)
	}
	if cfg.Hub.MaxInflight != 8 {
		t.Errorf("MaxInflight = %d, want 8", cfg.Hub.MaxInflight)
	}
	if cfg.Orchestrator.Timeouts.Collect.Std() != 10*time.Second {
		t.Errorf("Collect timeout = %v, want 10s", cfg.Orchestrator.Timeouts.Collect)
	}
	if cfg.Orchestrator.Timeouts.Report.Std() != 60*time.Second {
		t.Errorf("Report timeout should keep its default, got %v", cfg.Orchestrator.Timeouts.Report)
	}
	if got := cfg.Orchestrator.SourceWeights["social"]; got != 0.25 {
		t.Errorf("social weight = %v, want 0.25", got)
	}
	if got := cfg.Orchestrator.SourceWeights["news"]; got != 1.0 {
		t.Errorf("news weight should keep its default, got %v", got)
	}
	if cfg.Orchestrator.Parallel.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.Orchestrator.Parallel.MaxWorkers)
	}
	if cfg.Orchestrator.Parallel.FailFast() {
		t.Error("fail-fast default should survive a partial parallel section")
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentiment.json")
	content := `{"server": {"orchestrator_addr": ":9090"}, "hub": {"default_timeout": 5}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.OrchestratorAddr != ":9090" {
		t.Errorf("OrchestratorAddr = %q, want :9090", cfg.Server.OrchestratorAddr)
	}
	if cfg.Hub.DefaultTimeout.Std() != 5*time.Second {
		t.Errorf("DefaultTimeout = %v, want 5s", cfg.Hub.DefaultTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "malformed yaml", file: "bad.yaml", content: "registry: [unterminated"},
		{name: "malformed json", file: "bad.json", content: "{"},
		{name: "heartbeat exceeds window", file: "window.yaml", content: "registry:\n  liveness_window: 10s\nagent:\n  heartbeat_interval: 20s\n"},
		{name: "non-positive weight", file: "weight.yaml", content: "orchestrator:\n  source_weights:\n    news: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := config.Load(path); err == nil {
				t.Errorf("Load(%s) expected error", tt.file)
			}
		})
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of missing file expected error")
	}
}
