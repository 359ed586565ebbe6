package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
loop:
  target_fps: 30
  fixed_step: 10ms
  time_scale: 0.5
worker:
  enabled: false
storage:
  driver: file
  path: ./data
stats:
  flush: "@every 5s"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Worker.IsEnabled() {
		t.Fatal("worker.enabled=false not honored")
	}
	loop, err := cfg.Loop.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loop.TargetFPS != 30 || loop.Clock.FixedStep != 10*time.Millisecond || loop.TimeScale != 0.5 {
		t.Fatalf("loop = %+v", loop)
	}
	if loop.Interval != time.Second/30 {
		t.Fatalf("interval = %s", loop.Interval)
	}
	if cfg.Storage.DriverName() != "file" {
		t.Fatalf("driver = %q", cfg.Storage.DriverName())
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown":  `{"loop":{"target_fps":60,"turbo":true}}`,
		"trailing": `{"loop":{}} {"loop":{}}`,
	}
	for name, body := range cases {
		if _, err := Decode("c.json", []byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	loop, err := LoopConfig{}.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loop.TargetFPS != DefaultTargetFPS || loop.TimeScale != 1 {
		t.Fatalf("defaults = %+v", loop)
	}
	if loop.Clock.FixedStep != 20*time.Millisecond || loop.Clock.MaxDelta != 333*time.Millisecond {
		t.Fatalf("clock defaults = %+v", loop.Clock)
	}

	zero := 0.0
	paused, err := LoopConfig{TimeScale: &zero}.Resolve()
	if err != nil || paused.TimeScale != 0 {
		t.Fatalf("explicit zero scale = %v, %v", paused.TimeScale, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	neg := -1.0
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		Loop:    LoopConfig{FixedStep: "fast", TimeScale: &neg},
		Storage: &StorageConfig{Driver: "redis"},
		Stats:   StatsConfig{Flush: "whenever"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"logging.level", "loop.fixed_step", "storage.driver", "stats.flush"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}

	if err := Validate(&Config{}); err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
	if err := Validate(&Config{Storage: &StorageConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	o, err := ParseEnvMap(map[string]string{
		"FRAMESCHED_LOG_LEVEL":      "warn",
		"FRAMESCHED_TARGET_FPS":     "120",
		"FRAMESCHED_STORAGE_DRIVER": "sqlite",
		"FRAMESCHED_STORAGE_PATH":   "/tmp/f.db",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := &Config{}
	o.Apply(cfg)
	if cfg.Logging.Level != "warn" || cfg.Loop.TargetFPS != 120 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/f.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}

	if _, err := ParseEnvMap(map[string]string{"FRAMESCHED_TARGET_FPS": "lots"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestManagerReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "framesched.json", `{"loop":{"target_fps":60}}`)
	m := NewConfigManager(path)
	m.SetOverrides(Overrides{LogLevel: "error"})
	ctx := context.Background()

	cfg, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Fatalf("override not applied: %q", cfg.Logging.Level)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if _, err := m.Reload(ctx); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("reload of same content = %v, want ErrUnchanged", err)
	}

	if err := os.WriteFile(path, []byte(`{"loop":{"target_fps":0,"time_scale":-2}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(ctx); err == nil {
		t.Fatal("invalid config should be rejected")
	}
	if m.Get().Loop.TargetFPS != 60 {
		t.Fatal("rejected config must not be committed")
	}

	if err := os.WriteFile(path, []byte(`{"loop":{"target_fps":30}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	select {
	case got := <-sub:
		if got.Loop.TargetFPS != 30 {
			t.Fatalf("published fps = %d", got.Loop.TargetFPS)
		}
	default:
		t.Fatal("subscriber got nothing")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Diag: DiagConfig{Token: "secret"}}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Loop:    LoopConfig{TargetFPS: 30},
		Diag:    DiagConfig{Token: "other-secret"},
		Storage: &StorageConfig{Driver: "file", Path: "x"},
	}
	ch := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "loop", "storage"}
	if strings.Join(ch.Sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", ch.Sections, want)
	}
	if len(ch.Restart) != 1 || ch.Restart[0] != "storage" {
		t.Fatalf("restart = %v", ch.Restart)
	}
	if !ch.Has("loop") || ch.Has("diag") {
		t.Fatal("Has mismatch")
	}
	if len(SummarizeConfigChange(newCfg, newCfg).Sections) != 0 {
		t.Fatal("identical configs should not differ")
	}
}
