package app

import (
	"fmt"
	"strings"
	"time"

	"framesched/internal/config"
	"framesched/internal/observability/diag"
	"framesched/internal/scheduler"
	"framesched/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage.DriverName() == "none" {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)

	switch d := sc.DriverName(); d {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	if cfg == nil {
		return diag.Config{}, nil
	}
	d := cfg.Diag
	read, err := config.ParseDurationOrDefault("diag.read_timeout", d.ReadTimeout, 10*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("diag.idle_timeout", d.IdleTimeout, time.Minute)
	if err != nil {
		return diag.Config{}, err
	}
	return diag.Config{
		Enabled:       d.Enabled,
		Addr:          d.AddrOrDefault(),
		MetricsPath:   d.MetricsPathOrDefault(),
		Pprof:         d.Pprof,
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}

// schedulerOptions maps the loop, worker and logging sections. Logger, Bus
// and Observer are filled in by the caller.
func schedulerOptions(cfg *config.Config) (scheduler.Options, config.Loop, error) {
	loop, err := cfg.Loop.Resolve()
	if err != nil {
		return scheduler.Options{}, config.Loop{}, err
	}
	return scheduler.Options{
		Clock:             loop.Clock,
		FaultLogRate:      cfg.Logging.FaultRatePerSec,
		FaultLogBurst:     cfg.Logging.FaultBurst,
		DisableBackground: !cfg.Worker.IsEnabled(),
	}, loop, nil
}
