// Package config loads fleet monitor configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/fleetkit/decision"
	fkerrors "github.com/vinayprograms/fleetkit/errors"
	"github.com/vinayprograms/fleetkit/healing"
	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/liveness"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "fleetkit.toml"

// Config is the full monitor configuration. Zero values fall back to
// each package's defaults, so an empty file is a valid configuration.
type Config struct {
	Report    ReportConfig    `toml:"report"`
	Liveness  LivenessConfig  `toml:"liveness"`
	Health    HealthConfig    `toml:"health"`
	Decision  DecisionConfig  `toml:"decision"`
	Healing   HealingConfig   `toml:"healing"`
	Incident  IncidentConfig  `toml:"incident"`
	Explain   ExplainConfig   `toml:"explain"`
	Bus       BusConfig       `toml:"bus"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ReportConfig bounds report acceptance.
type ReportConfig struct {
	// MaxAge is how old a report timestamp may be before rejection.
	MaxAge time.Duration `toml:"max_age"`

	// MaxPerMinute caps one node's reports per minute. Zero disables.
	MaxPerMinute int `toml:"max_per_minute"`
}

// LivenessConfig drives the connection tracker.
type LivenessConfig struct {
	Timeout            time.Duration `toml:"timeout"`
	SweepInterval      time.Duration `toml:"sweep_interval"`
	HeartbeatStaleness time.Duration `toml:"heartbeat_staleness"`
}

// HealthConfig drives the rolling evaluator and per-node windows.
type HealthConfig struct {
	BaselineWindow   int     `toml:"baseline_window"`
	CausePersistence int     `toml:"cause_persistence"`
	WindowCapacity   int     `toml:"window_capacity"`
	CPUWeight        float64 `toml:"cpu_weight"`
	MemoryWeight     float64 `toml:"memory_weight"`
	DiskWeight       float64 `toml:"disk_weight"`
	NetworkWeight    float64 `toml:"network_weight"`
}

// DecisionConfig drives the decision engine.
type DecisionConfig struct {
	MinSamples              int           `toml:"min_samples"`
	TrendSamples            int           `toml:"trend_samples"`
	CriticalDeclineVelocity float64       `toml:"critical_decline_velocity"`
	DegradingVelocity       float64       `toml:"degrading_velocity"`
	ImprovingVelocity       float64       `toml:"improving_velocity"`
	PersistenceFloor        int           `toml:"persistence_floor"`
	HorizonSamples          int           `toml:"horizon_samples"`
	ShareThreshold          float64       `toml:"share_threshold"`
	HistoryCapacity         int           `toml:"history_capacity"`
	SustainedCPUThreshold   float64       `toml:"sustained_cpu_threshold"`
	SustainedCPUDuration    time.Duration `toml:"sustained_cpu_duration"`
}

// HealingConfig drives the auto-healer.
type HealingConfig struct {
	ActionDuration    time.Duration `toml:"action_duration"`
	VerifyInterval    time.Duration `toml:"verify_interval"`
	VerifyDeadline    time.Duration `toml:"verify_deadline"`
	MaxVerifyFailures int           `toml:"max_verify_failures"`
	BaseInterval      time.Duration `toml:"base_interval"`
	MinInterval       time.Duration `toml:"min_interval"`
	MaxInterval       time.Duration `toml:"max_interval"`
}

// IncidentConfig bounds the incident timeline.
type IncidentConfig struct {
	Capacity int `toml:"capacity"`
}

// ExplainConfig selects the narrative provider. The API key is read
// from the provider's environment variable, never from the file.
type ExplainConfig struct {
	// Provider is "anthropic", "openai", "google", or "" for the
	// deterministic template.
	Provider string `toml:"provider"`

	Model         string        `toml:"model"`
	MaxTokens     int           `toml:"max_tokens"`
	Timeout       time.Duration `toml:"timeout"`
	CacheCapacity int           `toml:"cache_capacity"`
}

// BusConfig selects the event bus.
type BusConfig struct {
	// Kind is "memory" or "nats". Empty means memory.
	Kind string `toml:"kind"`

	BufferSize int    `toml:"buffer_size"`
	URL        string `toml:"url"`
	Name       string `toml:"name"`
}

// TelemetryConfig selects the audit exporter.
type TelemetryConfig struct {
	// Protocol is "http", "file", or "noop". Empty means noop.
	Protocol string `toml:"protocol"`

	// Endpoint is the HTTP URL or file path, per protocol.
	Endpoint string `toml:"endpoint"`
}

// Load reads configuration from the default location. A missing file
// is not an error and yields the zero (all defaults) configuration.
func Load() (*Config, error) {
	if _, err := os.Stat(DefaultFileName); err != nil {
		return &Config{}, nil
	}
	return LoadFile(DefaultFileName)
}

// LoadFile loads and validates configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses and validates configuration from TOML content.
func Parse(content string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(content, &cfg)
	if err != nil {
		return nil, fkerrors.InvalidConfig(fmt.Sprintf("failed to parse config: %v", err))
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fkerrors.InvalidConfig(fmt.Sprintf("unknown config key %q", undecoded[0].String()))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and fails on the first problem.
func (c *Config) Validate() error {
	if c.Report.MaxAge < 0 {
		return fkerrors.InvalidConfig("report max_age must not be negative")
	}
	if c.Report.MaxPerMinute < 0 {
		return fkerrors.InvalidConfig("report max_per_minute must not be negative")
	}
	if err := c.LivenessConfig().Validate(); err != nil {
		return err
	}
	if c.Health.BaselineWindow < 0 || c.Health.WindowCapacity < 0 {
		return fkerrors.InvalidConfig("health capacities must not be negative")
	}
	for name, w := range map[string]float64{
		"cpu_weight":     c.Health.CPUWeight,
		"memory_weight":  c.Health.MemoryWeight,
		"disk_weight":    c.Health.DiskWeight,
		"network_weight": c.Health.NetworkWeight,
	} {
		if w < 0 {
			return fkerrors.InvalidConfig(name + " must not be negative")
		}
	}
	if err := c.DecisionConfig().Validate(); err != nil {
		return err
	}
	if c.Healing.MaxVerifyFailures < 0 {
		return fkerrors.InvalidConfig("max_verify_failures must not be negative")
	}
	if min, max := c.Healing.MinInterval, c.Healing.MaxInterval; min > 0 && max > 0 && min > max {
		return fkerrors.InvalidConfig("healing min_interval exceeds max_interval")
	}
	if c.Incident.Capacity < 0 {
		return fkerrors.InvalidConfig("incident capacity must not be negative")
	}
	switch strings.ToLower(c.Explain.Provider) {
	case "", "anthropic", "openai", "google":
	default:
		return fkerrors.InvalidConfig(fmt.Sprintf("unknown explain provider %q", c.Explain.Provider))
	}
	switch strings.ToLower(c.Bus.Kind) {
	case "", "memory", "nats":
	default:
		return fkerrors.InvalidConfig(fmt.Sprintf("unknown bus kind %q", c.Bus.Kind))
	}
	if c.Bus.BufferSize < 0 {
		return fkerrors.InvalidConfig("bus buffer_size must not be negative")
	}
	switch strings.ToLower(c.Telemetry.Protocol) {
	case "", "noop", "http", "file":
	default:
		return fkerrors.InvalidConfig(fmt.Sprintf("unknown telemetry protocol %q", c.Telemetry.Protocol))
	}
	return nil
}

// LivenessConfig maps the section onto the tracker configuration.
func (c *Config) LivenessConfig() liveness.Config {
	out := liveness.DefaultConfig()
	if c.Liveness.Timeout != 0 {
		out.Timeout = c.Liveness.Timeout
	}
	if c.Liveness.SweepInterval != 0 {
		out.SweepInterval = c.Liveness.SweepInterval
	}
	if c.Liveness.HeartbeatStaleness != 0 {
		out.HeartbeatStaleness = c.Liveness.HeartbeatStaleness
	}
	return out
}

// RollingConfig maps the health section onto the evaluator configuration.
func (c *Config) RollingConfig() health.RollingConfig {
	out := health.RollingConfig{
		BaselineWindow:   c.Health.BaselineWindow,
		CausePersistence: c.Health.CausePersistence,
	}
	weights := map[health.Factor]float64{}
	if c.Health.CPUWeight > 0 {
		weights[health.FactorCPU] = c.Health.CPUWeight
	}
	if c.Health.MemoryWeight > 0 {
		weights[health.FactorMemory] = c.Health.MemoryWeight
	}
	if c.Health.DiskWeight > 0 {
		weights[health.FactorDisk] = c.Health.DiskWeight
	}
	if c.Health.NetworkWeight > 0 {
		weights[health.FactorNetwork] = c.Health.NetworkWeight
	}
	if len(weights) > 0 {
		out.Weights = weights
	}
	return out
}

// DecisionConfig maps the section onto the engine configuration.
func (c *Config) DecisionConfig() decision.Config {
	d := c.Decision
	return decision.Config{
		MinSamples:              d.MinSamples,
		TrendSamples:            d.TrendSamples,
		CriticalDeclineVelocity: d.CriticalDeclineVelocity,
		DegradingVelocity:       d.DegradingVelocity,
		ImprovingVelocity:       d.ImprovingVelocity,
		PersistenceFloor:        d.PersistenceFloor,
		HorizonSamples:          d.HorizonSamples,
		ShareThreshold:          d.ShareThreshold,
		HistoryCapacity:         d.HistoryCapacity,
		SustainedCPUThreshold:   d.SustainedCPUThreshold,
		SustainedCPUDuration:    d.SustainedCPUDuration,
	}
}

// HealingConfig maps the section onto the auto-healer configuration.
func (c *Config) HealingConfig() healing.Config {
	h := c.Healing
	return healing.Config{
		ActionDuration:    h.ActionDuration,
		VerifyInterval:    h.VerifyInterval,
		VerifyDeadline:    h.VerifyDeadline,
		MaxVerifyFailures: h.MaxVerifyFailures,
		BaseInterval:      h.BaseInterval,
		MinInterval:       h.MinInterval,
		MaxInterval:       h.MaxInterval,
	}
}

// APIKey returns the environment API key for the configured explain
// provider, or "" when no provider is set.
func (c *Config) APIKey() string {
	switch strings.ToLower(c.Explain.Provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
