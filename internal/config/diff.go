package config

import (
	"sort"
	"strings"

	logx "framesched/pkg/logx"
)

// Change describes how two configs differ.
type Change struct {
	// Sections lists the changed top-level sections, sorted.
	Sections []string
	// Fields are safe to log; the diag token is never included.
	Fields []logx.Field
	// Restart lists changed sections that only apply after a restart.
	Restart []string
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	mark := func(section string, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.Console != nl.Console || ol.JSON != nl.JSON ||
		ol.File.Enabled != nl.File.Enabled ||
		strings.TrimSpace(ol.File.Path) != strings.TrimSpace(nl.File.Path) ||
		ol.FaultRatePerSec != nl.FaultRatePerSec || ol.FaultBurst != nl.FaultBurst {
		mark("logging",
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.json", nl.JSON),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Float64("logging.fault_rate_per_sec", nl.FaultRatePerSec),
		)
	}

	oLoop, _ := oldCfg.Loop.Resolve()
	nLoop, nErr := newCfg.Loop.Resolve()
	if oLoop != nLoop {
		fields := []logx.Field{
			logx.Int("loop.target_fps", nLoop.TargetFPS),
			logx.Duration("loop.fixed_step", nLoop.Clock.FixedStep),
			logx.Duration("loop.max_delta", nLoop.Clock.MaxDelta),
			logx.Int("loop.max_fixed_steps", nLoop.Clock.MaxFixedSteps),
			logx.Float64("loop.time_scale", nLoop.TimeScale),
		}
		if nErr != nil {
			fields = append(fields, logx.Err(nErr))
		}
		mark("loop", fields...)
	}

	if oldCfg.Worker.IsEnabled() != newCfg.Worker.IsEnabled() {
		mark("worker", logx.Bool("worker.enabled", newCfg.Worker.IsEnabled()))
	}

	od, nd := oldCfg.Diag, newCfg.Diag
	if od.Enabled != nd.Enabled || od.AddrOrDefault() != nd.AddrOrDefault() ||
		od.MetricsPathOrDefault() != nd.MetricsPathOrDefault() ||
		od.Pprof != nd.Pprof || od.AllowInsecure != nd.AllowInsecure ||
		strings.TrimSpace(od.ReadTimeout) != strings.TrimSpace(nd.ReadTimeout) ||
		strings.TrimSpace(od.IdleTimeout) != strings.TrimSpace(nd.IdleTimeout) ||
		(strings.TrimSpace(od.Token) != "") != (strings.TrimSpace(nd.Token) != "") {
		mark("diag",
			logx.Bool("diag.enabled", nd.Enabled),
			logx.String("diag.addr", nd.AddrOrDefault()),
			logx.String("diag.metrics_path", nd.MetricsPathOrDefault()),
			logx.Bool("diag.pprof", nd.Pprof),
			logx.Bool("diag.token_set", strings.TrimSpace(nd.Token) != ""),
		)
	}

	var oPath, nPath, oBusy, nBusy string
	if oldCfg.Storage != nil {
		oPath, oBusy = strings.TrimSpace(oldCfg.Storage.Path), strings.TrimSpace(oldCfg.Storage.BusyTimeout)
	}
	if newCfg.Storage != nil {
		nPath, nBusy = strings.TrimSpace(newCfg.Storage.Path), strings.TrimSpace(newCfg.Storage.BusyTimeout)
	}
	if oldCfg.Storage.DriverName() != newCfg.Storage.DriverName() || oPath != nPath || oBusy != nBusy {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.DriverName()),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
		ch.Restart = append(ch.Restart, "storage")
	}

	if oldCfg.Stats.FlushOrDefault() != newCfg.Stats.FlushOrDefault() ||
		oldCfg.Stats.HistoryOrDefault() != newCfg.Stats.HistoryOrDefault() {
		mark("stats",
			logx.String("stats.flush", newCfg.Stats.FlushOrDefault()),
			logx.Int("stats.history_size", newCfg.Stats.HistoryOrDefault()),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}
