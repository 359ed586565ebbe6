package config

import (
	"fmt"
	"strings"
	"time"

	"framesched/internal/clock"
	logx "framesched/pkg/logx"
)

const (
	DefaultTargetFPS   = 60
	DefaultDiagAddr    = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"
	DefaultStatsFlush  = "@every 30s"
	DefaultHistorySize = 256
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Loop    LoopConfig    `json:"loop"`
	Worker  WorkerConfig  `json:"worker"`
	Diag    DiagConfig    `json:"diag,omitempty"`

	// Storage is optional; nil or driver "none" disables persistence.
	Storage *StorageConfig `json:"storage,omitempty"`
	Stats   StatsConfig    `json:"stats"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`

	// FaultRatePerSec throttles participant fault logs. 0 keeps the
	// scheduler default, negative disables throttling.
	FaultRatePerSec float64 `json:"fault_rate_per_sec,omitempty"`
	FaultBurst      int     `json:"fault_burst,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx maps the section onto the logging service config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

// LoopConfig drives the real-time host.
//
// All durations are Go duration strings (e.g. "20ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - target_fps: 60
//   - fixed_step: "20ms"
//   - max_delta: "333ms"
//   - max_fixed_steps: 8
//   - time_scale: 1
type LoopConfig struct {
	TargetFPS     int    `json:"target_fps"`
	FixedStep     string `json:"fixed_step,omitempty"`
	MaxDelta      string `json:"max_delta,omitempty"`
	MaxFixedSteps int    `json:"max_fixed_steps,omitempty"`

	// TimeScale is a pointer so an explicit 0 (paused) differs from omitted.
	TimeScale *float64 `json:"time_scale,omitempty"`
}

// Loop is LoopConfig with defaults applied and durations parsed.
type Loop struct {
	TargetFPS int
	Interval  time.Duration
	Clock     clock.Config
	TimeScale float64
}

func (l LoopConfig) Resolve() (Loop, error) {
	fixed, err := parseDuration("loop.fixed_step", l.FixedStep, clock.DefaultFixedStep)
	if err != nil {
		return Loop{}, err
	}
	maxDelta, err := parseDuration("loop.max_delta", l.MaxDelta, clock.DefaultMaxDelta)
	if err != nil {
		return Loop{}, err
	}
	fps := l.TargetFPS
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	if fps > 1000 {
		return Loop{}, fmt.Errorf("loop.target_fps: %d exceeds 1000", fps)
	}
	if l.MaxFixedSteps < 0 {
		return Loop{}, fmt.Errorf("loop.max_fixed_steps: must be >= 0")
	}
	scale := 1.0
	if l.TimeScale != nil {
		scale = *l.TimeScale
		if scale < 0 {
			return Loop{}, fmt.Errorf("loop.time_scale: must be >= 0")
		}
	}
	return Loop{
		TargetFPS: fps,
		Interval:  time.Second / time.Duration(fps),
		Clock: clock.Config{
			FixedStep:     fixed,
			MaxDelta:      maxDelta,
			MaxFixedSteps: l.MaxFixedSteps,
		},
		TimeScale: scale,
	}, nil
}

type WorkerConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

func (w WorkerConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// DiagConfig controls the diagnostics HTTP server (/metrics, /healthz, pprof).
//
// Security note:
//   - Prefer binding to localhost.
//   - A non-loopback address needs a token or allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	MetricsPath   string `json:"metrics_path,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

func (d DiagConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(d.Addr); a != "" {
		return a
	}
	return DefaultDiagAddr
}

func (d DiagConfig) MetricsPathOrDefault() string {
	p := strings.TrimSpace(d.MetricsPath)
	if p == "" {
		return DefaultMetricsPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// StorageConfig controls fault history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./framesched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DriverName returns the normalized driver, "none" when storage is off.
func (s *StorageConfig) DriverName() string {
	if s == nil {
		return "none"
	}
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "" {
		return "none"
	}
	return d
}

// StatsConfig controls how often frame stats and faults are flushed.
type StatsConfig struct {
	// Flush is a cron spec; descriptors like "@every 30s" work.
	Flush       string `json:"flush,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

func (s StatsConfig) FlushOrDefault() string {
	if f := strings.TrimSpace(s.Flush); f != "" {
		return f
	}
	return DefaultStatsFlush
}

func (s StatsConfig) HistoryOrDefault() int {
	if s.HistorySize > 0 {
		return s.HistorySize
	}
	return DefaultHistorySize
}

// parseDuration reads a non-negative duration string; empty or zero yields def.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// ParseDurationOrDefault is parseDuration for other packages.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return parseDuration(path, raw, def)
}
