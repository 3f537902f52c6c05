// Package config provides configuration structures for every subsystem.
//
// Each subsystem has a Default*Config constructor and a Merge method that
// copies non-zero values from a loaded source. The root Config composes them
// and is loaded from a YAML or JSON file:
//
//	cfg, err := config.Load("sentiment.yaml")
//	reg := registry.New(cfg.Registry)
//
// Durations are written as Go duration strings ("90s", "1m30s").
//
// Configuration only exists during initialization. Validation happens at the
// point of use, in the packages that consume each section.
package config
