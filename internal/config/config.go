// Package config assembles every component's Config into one document,
// loadable from YAML and safe to hot-reload while the pipeline is running.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"leadpipe/internal/classifier"
	"leadpipe/internal/enricher"
	"leadpipe/internal/exporter"
	"leadpipe/internal/governor"
	"leadpipe/internal/leadmodel"
	"leadpipe/internal/orchestrator"
	"leadpipe/internal/store"
)

// GlobalSettings holds the ambient, cross-cutting knobs that don't belong
// to any single pipeline stage: what to log, and which telemetry backend
// to wire into the orchestrator's Deps.
type GlobalSettings struct {
	LogLevel       string // debug|info|warn|error, default info
	MetricsBackend string // noop|prometheus|otel, default noop
	TracingEnabled bool
	ServiceName    string // meter name of the OTel metrics provider; metric names keep the fixed "leadpipe" namespace
}

func defaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		LogLevel:       "info",
		MetricsBackend: "noop",
		TracingEnabled: false,
		ServiceName:    "leadpipe",
	}
}

func (g *GlobalSettings) applyDefaults() {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.MetricsBackend == "" {
		g.MetricsBackend = "noop"
	}
	if g.ServiceName == "" {
		g.ServiceName = "leadpipe"
	}
}

func (g GlobalSettings) validate() error {
	switch g.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: global.loglevel %q is not one of debug|info|warn|error", g.LogLevel)
	}
	switch g.MetricsBackend {
	case "noop", "prometheus", "otel":
	default:
		return fmt.Errorf("config: global.metricsbackend %q is not one of noop|prometheus|otel", g.MetricsBackend)
	}
	return nil
}

// Config is the whole-process document: one section per pipeline stage
// plus the ambient GlobalSettings. Every nested Config is a zero-value-safe
// struct from its owning package — this wrapper composes them the way
// engine/config.UnifiedBusinessConfig composes FetchPolicy/ProcessPolicy/
// SinkPolicy, without duplicating any stage's own default or validation
// logic.
type Config struct {
	Sources []leadmodel.Source

	Governor     governor.Config
	Classifier   classifier.Config
	Enricher     enricher.Config
	Store        store.Config
	Exporter     exporter.Config
	Orchestrator orchestrator.Config // Orchestrator.Export carries the batch-export schedule/window
	Global       GlobalSettings
}

// Default returns a Config with every section at its package defaults.
// Sub-configs are intentionally left zero-value: each stage's own New()
// already calls applyDefaults() on a zero Config, so Default() only needs
// to seed the settings this package owns.
func Default() Config {
	return Config{Global: defaultGlobalSettings()}
}

// applyDefaults seeds Global only. Every stage section is handed on as
// loaded; stage-internal defaulting happens inside each
// New()/Reconfigure() call, not here.
func (c *Config) applyDefaults() {
	c.Global.applyDefaults()
}

// Validate cascades into one check per section, in the style of
// UnifiedBusinessConfig.Validate: catch operator typos (negative
// durations, thresholds outside their valid range) before they reach a
// running pipeline, without re-deriving every invariant each stage
// already enforces on its own inputs.
func (c Config) Validate() error {
	if err := c.Global.validate(); err != nil {
		return err
	}
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: classifier.confidencethreshold %v out of [0,1]", c.Classifier.ConfidenceThreshold)
	}
	if c.Store.SimilarityThreshold < 0 || c.Store.SimilarityThreshold > 1 {
		return fmt.Errorf("config: store.similaritythreshold %v out of [0,1]", c.Store.SimilarityThreshold)
	}
	if c.Governor.MaxConcurrentSources < 0 || c.Governor.MaxWorkers < 0 {
		return fmt.Errorf("config: governor concurrency limits must be non-negative")
	}
	if c.Orchestrator.RetryMaxAttempts < 0 {
		return fmt.Errorf("config: orchestrator.retrymaxattempts must be non-negative")
	}
	if c.Orchestrator.Export.WindowStart < 0 || c.Orchestrator.Export.WindowStart > 23 || c.Orchestrator.Export.WindowEnd < 0 || c.Orchestrator.Export.WindowEnd > 23 {
		return fmt.Errorf("config: orchestrator.export window hours must be in [0,23]")
	}
	return nil
}

// Load reads a YAML document at path into a defaulted, validated Config.
func Load(path string) (Config, error) {
	cfg, _, err := loadWithRaw(path)
	return cfg, err
}

func loadWithRaw(path string) (Config, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, raw, nil
}

// checksum is a cheap content fingerprint used to decide whether a
// reloaded file actually changed, mirroring
// engine/internal/runtime.DetectChanges's checksum-first comparison.
func checksum(raw []byte) string {
	return fmt.Sprintf("%d-%x", len(raw), sum(raw))
}

func sum(raw []byte) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for _, b := range raw {
		h ^= uint64(b)
		h *= 1099511628211 // FNV-1a prime
	}
	return h
}
