package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/sentiment/observability"
)

// Config holds initialization parameters for all subsystems.
type Config struct {
	Logging      observability.LoggingConfig `json:"logging" yaml:"logging"`
	Registry     RegistryConfig              `json:"registry" yaml:"registry"`
	Hub          HubConfig                   `json:"hub" yaml:"hub"`
	Orchestrator OrchestratorConfig          `json:"orchestrator" yaml:"orchestrator"`
	Agent        AgentConfig                 `json:"agent" yaml:"agent"`
	Server       ServerConfig                `json:"server" yaml:"server"`
}

// Default returns a Config with sensible defaults for all subsystems.
func Default() Config {
	return Config{
		Logging:      observability.DefaultLoggingConfig(),
		Registry:     DefaultRegistryConfig(),
		Hub:          DefaultHubConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Agent:        DefaultAgentConfig(),
		Server:       DefaultServerConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Logging.Merge(&source.Logging)
	c.Registry.Merge(&source.Registry)
	c.Hub.Merge(&source.Hub)
	c.Orchestrator.Merge(&source.Orchestrator)
	c.Agent.Merge(&source.Agent)
	c.Server.Merge(&source.Server)
}

// Validate checks cross-section constraints.
func (c *Config) Validate() error {
	if c.Agent.HeartbeatInterval >= c.Registry.LivenessWindow {
		return fmt.Errorf(
			"agent heartbeat interval %s must be shorter than registry liveness window %s",
			c.Agent.HeartbeatInterval, c.Registry.LivenessWindow,
		)
	}
	if len(c.Orchestrator.Capabilities.Collect) == 0 {
		return fmt.Errorf("orchestrator needs at least one collection capability")
	}
	for source, weight := range c.Orchestrator.SourceWeights {
		if weight <= 0 {
			return fmt.Errorf("source weight for %q must be positive, got %v", source, weight)
		}
	}
	return nil
}

// Load reads a YAML (.yaml, .yml) or JSON config file, merges it with
// defaults, and returns the validated result.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	loaded, err := Parse(data, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}

	cfg.Merge(loaded)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return &cfg, nil
}

// Parse decodes raw config bytes. ext selects the format; anything other
// than ".json" is parsed as YAML.
func Parse(data []byte, ext string) (*Config, error) {
	var loaded Config

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return &loaded, nil
}
