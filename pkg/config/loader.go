package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Path is the YAML config file. Optional: without it the loader
	// produces the defaults.
	Path string

	// EnvFile is an optional dotenv file loaded before expansion.
	EnvFile string

	// Watch reloads the config when the file changes.
	Watch bool

	// OnChange receives each successfully reloaded config.
	OnChange func(*Config)
}

// Loader reads, expands, and validates the runtime configuration.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	provider *file.File
	stopped  chan struct{}
}

// NewLoader creates a loader for the given options.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		koanf:   koanf.New("."),
		options: opts,
		stopped: make(chan struct{}),
	}
}

// Load reads the config file (when present), expands ${VAR} references,
// applies defaults, and validates. With Watch set it also starts the file
// watcher.
func (l *Loader) Load() (*Config, error) {
	if l.options.EnvFile != "" {
		if err := godotenv.Load(l.options.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if l.options.Path != "" {
		l.provider = file.Provider(l.options.Path)
		if err := l.koanf.Load(l.provider, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Path, err)
		}
		if err := l.expandEnvInKoanf(); err != nil {
			return nil, err
		}
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch && l.provider != nil {
		if err := l.watch(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// expandEnvInKoanf rewrites every string value through the env expander.
func (l *Loader) expandEnvInKoanf() error {
	expanded := make(map[string]any)
	for key, value := range l.koanf.All() {
		if s, ok := value.(string); ok {
			expanded[key] = expandEnvVars(s)
		} else {
			expanded[key] = value
		}
	}
	l.koanf = koanf.New(".")
	if err := l.koanf.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return fmt.Errorf("failed to reload expanded config: %w", err)
	}
	return nil
}

// watch reloads the configuration on file change events. A reload that
// fails to parse or validate keeps the previous config in effect.
func (l *Loader) watch() error {
	return l.provider.Watch(func(_ interface{}, err error) {
		select {
		case <-l.stopped:
			return
		default:
		}

		if err != nil {
			slog.Warn("config watch error", "path", l.options.Path, "error", err)
			return
		}

		l.koanf = koanf.New(".")
		if err := l.koanf.Load(l.provider, yaml.Parser()); err != nil {
			slog.Warn("config reload failed", "path", l.options.Path, "error", err)
			return
		}
		if err := l.expandEnvInKoanf(); err != nil {
			slog.Warn("config reload expansion failed", "path", l.options.Path, "error", err)
			return
		}
		cfg, err := l.unmarshal()
		if err != nil {
			slog.Warn("reloaded config rejected", "path", l.options.Path, "error", err)
			return
		}

		slog.Info("config reloaded", "path", l.options.Path)
		if l.options.OnChange != nil {
			l.options.OnChange(cfg)
		}
	})
}

// Stop ends the watcher.
func (l *Loader) Stop() {
	select {
	case <-l.stopped:
	default:
		close(l.stopped)
	}
	if l.provider != nil {
		_ = l.provider.Unwatch()
	}
}
