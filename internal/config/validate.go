package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	logx "framesched/pkg/logx"
)

var knownDrivers = map[string]struct{}{"none": {}, "file": {}, "sqlite": {}}

// Validate checks every section and returns all problems joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if _, err := cfg.Loop.Resolve(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Diag.Enabled {
		if _, err := parseDuration("diag.read_timeout", cfg.Diag.ReadTimeout, 0); err != nil {
			errs = append(errs, err)
		}
		if _, err := parseDuration("diag.idle_timeout", cfg.Diag.IdleTimeout, 0); err != nil {
			errs = append(errs, err)
		}
	}

	driver := cfg.Storage.DriverName()
	if _, ok := knownDrivers[driver]; !ok {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", driver))
	} else if driver != "none" {
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", driver))
		}
		if _, err := parseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := cron.ParseStandard(cfg.Stats.FlushOrDefault()); err != nil {
		errs = append(errs, fmt.Errorf("stats.flush: %w", err))
	}
	if cfg.Stats.HistorySize < 0 {
		errs = append(errs, errors.New("stats.history_size: must be >= 0"))
	}

	return errors.Join(errs...)
}
