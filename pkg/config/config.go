// Package config defines the runtime configuration surface and the koanf
// based loader. Every section carries its own SetDefaults and Validate;
// loading always produces a fully defaulted, validated Config.
package config

import (
	"fmt"
)

// Config is the root configuration consumed by the runtime.
type Config struct {
	Workflow WorkflowConfig `koanf:"workflow" yaml:"workflow"`
	Intent   IntentConfig   `koanf:"intent" yaml:"intent"`
	Quota    QuotaConfig    `koanf:"quota" yaml:"quota"`
	Store    StoreConfig    `koanf:"store" yaml:"store"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
}

// WorkflowConfig tunes the orchestrator and the tool pipeline.
type WorkflowConfig struct {
	// ApprovalMode selects the gate-4 policy: strict, balanced, or fast.
	ApprovalMode string `koanf:"approval_mode" yaml:"approval_mode"`
	// MaxReflexionRetries bounds the QA retry loop.
	MaxReflexionRetries int `koanf:"max_reflexion_retries" yaml:"max_reflexion_retries"`
	// PersistEvents enables the write-through of envelopes to the store.
	PersistEvents bool `koanf:"persist_events" yaml:"persist_events"`
	// WorkingDirectory is handed to tool handlers through the exec context.
	WorkingDirectory string `koanf:"working_directory" yaml:"working_directory"`
	// DangerousCommands extends the built-in dangerous pattern set.
	DangerousCommands []string `koanf:"dangerous_commands" yaml:"dangerous_commands"`
}

// IntentConfig tunes the natural-language approval classifier.
type IntentConfig struct {
	ApproveThreshold float64 `koanf:"approve_threshold" yaml:"approve_threshold"`
	ConfirmThreshold float64 `koanf:"confirm_threshold" yaml:"confirm_threshold"`
	ConflictPolicy   string  `koanf:"conflict_policy" yaml:"conflict_policy"`
}

// QuotaConfig tunes the usage-limit resolver.
type QuotaConfig struct {
	TokensPerMonth    int64  `koanf:"tokens_per_month" yaml:"tokens_per_month"`
	RequestsPerDay    int64  `koanf:"requests_per_day" yaml:"requests_per_day"`
	HardLimitBehavior string `koanf:"hard_limit_behavior" yaml:"hard_limit_behavior"`
	QueueEtaMinutes   int    `koanf:"queue_eta_minutes" yaml:"queue_eta_minutes"`
	SoftLimitPercent  int    `koanf:"soft_limit_percent" yaml:"soft_limit_percent"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Type is "memory" or "sqlite".
	Type string `koanf:"type" yaml:"type"`
	// Path is the database file for the sqlite backend.
	Path string `koanf:"path" yaml:"path"`
}

// LoggingConfig tunes the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// SetDefaults fills every unset field with its default.
func (c *Config) SetDefaults() {
	if c.Workflow.ApprovalMode == "" {
		c.Workflow.ApprovalMode = "balanced"
	}
	if c.Workflow.MaxReflexionRetries == 0 {
		c.Workflow.MaxReflexionRetries = 3
	}
	if c.Intent.ApproveThreshold == 0 {
		c.Intent.ApproveThreshold = 0.85
	}
	if c.Intent.ConfirmThreshold == 0 {
		c.Intent.ConfirmThreshold = 0.60
	}
	if c.Intent.ConflictPolicy == "" {
		c.Intent.ConflictPolicy = "deny_over_approve"
	}
	if c.Quota.HardLimitBehavior == "" {
		c.Quota.HardLimitBehavior = "block"
	}
	if c.Quota.QueueEtaMinutes == 0 {
		c.Quota.QueueEtaMinutes = 5
	}
	if c.Quota.SoftLimitPercent == 0 {
		c.Quota.SoftLimitPercent = 80
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate rejects values outside the recognized sets and ranges.
func (c *Config) Validate() error {
	switch c.Workflow.ApprovalMode {
	case "strict", "balanced", "fast":
	default:
		return fmt.Errorf("unknown approval_mode %q", c.Workflow.ApprovalMode)
	}
	if c.Workflow.MaxReflexionRetries < 1 {
		return fmt.Errorf("max_reflexion_retries must be positive, got %d", c.Workflow.MaxReflexionRetries)
	}
	if c.Intent.ApproveThreshold <= 0 || c.Intent.ApproveThreshold > 1 {
		return fmt.Errorf("approve_threshold must be in (0,1], got %v", c.Intent.ApproveThreshold)
	}
	if c.Intent.ConfirmThreshold <= 0 || c.Intent.ConfirmThreshold > 1 {
		return fmt.Errorf("confirm_threshold must be in (0,1], got %v", c.Intent.ConfirmThreshold)
	}
	if c.Intent.ConfirmThreshold > c.Intent.ApproveThreshold {
		return fmt.Errorf("confirm_threshold %v exceeds approve_threshold %v", c.Intent.ConfirmThreshold, c.Intent.ApproveThreshold)
	}
	switch c.Intent.ConflictPolicy {
	case "deny_over_approve", "approve_over_deny", "strict":
	default:
		return fmt.Errorf("unknown conflict_policy %q", c.Intent.ConflictPolicy)
	}
	switch c.Quota.HardLimitBehavior {
	case "block", "degrade", "queue":
	default:
		return fmt.Errorf("unknown hard_limit_behavior %q", c.Quota.HardLimitBehavior)
	}
	if c.Quota.QueueEtaMinutes < 1 {
		return fmt.Errorf("queue_eta_minutes must be positive, got %d", c.Quota.QueueEtaMinutes)
	}
	if c.Quota.SoftLimitPercent < 1 || c.Quota.SoftLimitPercent > 100 {
		return fmt.Errorf("soft_limit_percent must be in 1-100, got %d", c.Quota.SoftLimitPercent)
	}
	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
