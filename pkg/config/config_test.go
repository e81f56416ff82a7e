package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "balanced", cfg.Workflow.ApprovalMode)
	assert.Equal(t, 3, cfg.Workflow.MaxReflexionRetries)
	assert.Equal(t, 0.85, cfg.Intent.ApproveThreshold)
	assert.Equal(t, 0.60, cfg.Intent.ConfirmThreshold)
	assert.Equal(t, "deny_over_approve", cfg.Intent.ConflictPolicy)
	assert.Equal(t, "block", cfg.Quota.HardLimitBehavior)
	assert.Equal(t, 5, cfg.Quota.QueueEtaMinutes)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"bad approval mode", func(c *Config) { c.Workflow.ApprovalMode = "yolo" }, true},
		{"zero retries", func(c *Config) { c.Workflow.MaxReflexionRetries = -1 }, true},
		{"threshold above one", func(c *Config) { c.Intent.ApproveThreshold = 1.5 }, true},
		{"confirm above approve", func(c *Config) { c.Intent.ConfirmThreshold = 0.95 }, true},
		{"bad conflict policy", func(c *Config) { c.Intent.ConflictPolicy = "random" }, true},
		{"bad limit behavior", func(c *Config) { c.Quota.HardLimitBehavior = "explode" }, true},
		{"sqlite without path", func(c *Config) { c.Store.Type = "sqlite" }, true},
		{"sqlite with path", func(c *Config) { c.Store.Type = "sqlite"; c.Store.Path = "runs.db" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TABULA_STORE_PATH", "/data/runs.db")

	dir := t.TempDir()
	path := filepath.Join(dir, "tabula.yaml")
	content := `
workflow:
  approval_mode: fast
  max_reflexion_retries: 5
intent:
  conflict_policy: strict
store:
  type: sqlite
  path: ${TABULA_STORE_PATH}
quota:
  hard_limit_behavior: queue
  queue_eta_minutes: 9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.Workflow.ApprovalMode)
	assert.Equal(t, 5, cfg.Workflow.MaxReflexionRetries)
	assert.Equal(t, "strict", cfg.Intent.ConflictPolicy)
	assert.Equal(t, "/data/runs.db", cfg.Store.Path)
	assert.Equal(t, 9, cfg.Quota.QueueEtaMinutes)
	// Untouched sections keep defaults.
	assert.Equal(t, 0.85, cfg.Intent.ApproveThreshold)
}

func TestLoader_EnvDefaultFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: ${TABULA_UNSET_LEVEL:-debug}\n"), 0o644))

	cfg, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoader_RoundTripsMarshaledConfig(t *testing.T) {
	want := Default()
	want.Workflow.ApprovalMode = "strict"
	want.Workflow.DangerousCommands = []string{`\bdd\s+if=`}
	want.Intent.ApproveThreshold = 0.9

	data, err := yaml.Marshal(want)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "tabula.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Path: "/nope/definitely/missing.yaml"}).Load()
	assert.Error(t, err)
}

func TestLoader_NoPathYieldsDefaults(t *testing.T) {
	cfg, err := NewLoader(LoaderOptions{}).Load()
	require.NoError(t, err)
	assert.Equal(t, "balanced", cfg.Workflow.ApprovalMode)
}

func TestLoader_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  approval_mode: reckless\n"), 0o644))

	_, err := NewLoader(LoaderOptions{Path: path}).Load()
	assert.Error(t, err)
}
