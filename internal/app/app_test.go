package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"framesched/internal/clock"
	"framesched/internal/config"
	"framesched/internal/eventbus"
	"framesched/internal/registry"
	"framesched/internal/scheduler"
	"framesched/internal/worker"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "framesched.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

const baseConfig = `
logging:
  level: error
loop:
  target_fps: 200
  fixed_step: 5ms
storage:
  driver: file
  path: %s
stats:
  flush: "@every 1h"
`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(baseConfig, filepath.Join(dir, "fs.store"))
	a, err := NewApp(writeConfig(t, dir, body))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, dir
}

func TestAppRunsFramesAndPersistsFaults(t *testing.T) {
	t.Parallel()
	a, dir := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "frames", func() bool { return a.Scheduler().LastStats().Frame >= 5 })

	var id registry.Handle
	err := a.Do(ctx, func(s *scheduler.Scheduler) {
		id = s.NewHandle()
		s.AddUpdate(&scheduler.UpdateFunc{ID: id, Fn: func(clock.Frame) error {
			return errors.New("boom")
		}})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	waitFor(t, "faults", func() bool { return a.Recorder().Count(id) >= 3 })
	waitFor(t, "fps", func() bool { return a.Status().FPS > 0 })

	st := a.Status()
	if !st.Healthy || !st.Scheduler.Running {
		t.Fatalf("status = %+v", st)
	}
	if len(st.TopFaults) == 0 || st.TopFaults[0].Participant != id.String() {
		t.Fatalf("top faults = %+v", st.TopFaults)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Scheduler().Running() {
		t.Fatal("scheduler still running after stop")
	}
	if err := a.Do(ctx, func(*scheduler.Scheduler) {}); !errors.Is(err, scheduler.ErrShutdown) {
		t.Fatalf("do after stop = %v", err)
	}

	faults := readLines(t, filepath.Join(dir, "fs.faults.jsonl"))
	if len(faults) < 3 {
		t.Fatalf("persisted faults = %d", len(faults))
	}
	if faults[0]["participant"] != id.String() || faults[0]["error"] != "boom" {
		t.Fatalf("fault row = %v", faults[0])
	}
	frames := readLines(t, filepath.Join(dir, "fs.frames.jsonl"))
	if len(frames) != 1 || frames[0]["frame"].(float64) < 5 {
		t.Fatalf("frame rows = %v", frames)
	}
}

func TestAppHotReloadsLoop(t *testing.T) {
	t.Parallel()
	a, dir := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	waitFor(t, "frames", func() bool { return a.Scheduler().LastStats().Frame >= 2 })

	body := fmt.Sprintf(baseConfig, filepath.Join(dir, "fs.store"))
	body = strings.Replace(body, "fixed_step: 5ms", "fixed_step: 5ms\n  time_scale: 0.25", 1)
	body = strings.Replace(body, "target_fps: 200", "target_fps: 100", 1)
	writeConfig(t, dir, body)
	// the file watcher may win the race to reload
	if _, err := a.cfgm.Reload(ctx); err != nil && !errors.Is(err, config.ErrUnchanged) {
		t.Fatalf("reload: %v", err)
	}
	waitFor(t, "time scale", func() bool { return a.Scheduler().LastStats().TimeScale == 0.25 })
	if got := time.Duration(a.interval.Load()); got != 10*time.Millisecond {
		t.Fatalf("interval = %s", got)
	}
}

func TestReleaseForgetsParticipant(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	var id registry.Handle
	var before int
	err := a.Do(ctx, func(s *scheduler.Scheduler) {
		before = s.Stats().Update
		id = s.NewHandle()
		failed := false
		s.AddUpdate(&scheduler.UpdateFunc{ID: id, Fn: func(clock.Frame) error {
			if failed {
				return nil
			}
			failed = true
			return errors.New("once")
		}})
		s.AddBackground(&worker.Funcs{ID: id})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	waitFor(t, "fault", func() bool { return a.Recorder().Count(id) == 1 })

	if err := a.Release(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n := a.Recorder().Count(id); n != 0 {
		t.Fatalf("count after release = %d", n)
	}
	var after, background int
	_ = a.Do(ctx, func(s *scheduler.Scheduler) {
		st := s.Stats()
		after, background = st.Update, st.Background
	})
	if after != before || background != 1 {
		t.Fatalf("registered after release: update %d (want %d), background %d", after, before, background)
	}
	if err := a.Release(ctx, id); err == nil {
		t.Fatal("second release of the same handle should fail")
	}
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	if err := a.Stop(context.Background(), StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Scheduler().Running() {
		t.Fatal("scheduler still running")
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := NewApp(writeConfig(t, dir, "storage:\n  driver: redis\n"))
	if err == nil {
		t.Fatal("unknown storage driver should fail")
	}
}

func TestFrameStatsRate(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.TypeFrameStats)
	defer unsub()

	now := time.Unix(100, 0)
	fs := newFrameStats(registry.NewArena().Alloc(), bus)
	fs.now = func() time.Time { return now }

	step := func(frame uint64) {
		_ = fs.OnUpdate(clock.Frame{Number: frame, Scale: 1})
		_ = fs.OnMainThreadUpdate()
		_ = fs.OnSeparateThreadUpdate()
		_ = fs.OnSeparateThreadComplete()
	}
	step(1)
	if fs.FPS() != 0 {
		t.Fatalf("first sample fps = %v", fs.FPS())
	}
	now = now.Add(time.Second)
	step(61)
	if fs.FPS() != 60 {
		t.Fatalf("fps = %v, want 60", fs.FPS())
	}
	now = now.Add(time.Second)
	step(91)
	// 60 + 0.1*(30-60)
	if got := fs.FPS(); got < 56.99 || got > 57.01 {
		t.Fatalf("smoothed fps = %v", got)
	}

	var last FrameRate
	for i := 0; i < 3; i++ {
		ev := <-ch
		last = ev.Data.(FrameRate)
	}
	if last.Frame != 91 || last.Scale != 1 {
		t.Fatalf("event = %+v", last)
	}
}
