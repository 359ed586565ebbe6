package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Overrides are environment values layered over the file on every load.
type Overrides struct {
	LogLevel      string `env:"FRAMESCHED_LOG_LEVEL"`
	TargetFPS     int    `env:"FRAMESCHED_TARGET_FPS"`
	DiagAddr      string `env:"FRAMESCHED_DIAG_ADDR"`
	StorageDriver string `env:"FRAMESCHED_STORAGE_DRIVER"`
	StoragePath   string `env:"FRAMESCHED_STORAGE_PATH"`
}

// ParseEnv reads Overrides from the process environment.
func ParseEnv() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// ParseEnvMap reads Overrides from an explicit environment.
func ParseEnvMap(environ map[string]string) (Overrides, error) {
	var o Overrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

func (o Overrides) IsZero() bool { return o == Overrides{} }

// Apply writes the set overrides into cfg.
func (o Overrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if o.TargetFPS > 0 {
		cfg.Loop.TargetFPS = o.TargetFPS
	}
	if v := strings.TrimSpace(o.DiagAddr); v != "" {
		cfg.Diag.Addr = v
	}
	if o.StorageDriver != "" || o.StoragePath != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		if v := strings.TrimSpace(o.StorageDriver); v != "" {
			cfg.Storage.Driver = v
		}
		if v := strings.TrimSpace(o.StoragePath); v != "" {
			cfg.Storage.Path = v
		}
	}
}
