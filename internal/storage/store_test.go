package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "framesched/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: store=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	var recs []FaultRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, FaultRecord{
			At:          base.Add(time.Duration(i) * time.Millisecond),
			Phase:       "update",
			Participant: fmt.Sprintf("h:%d.1", i),
			Error:       "boom",
		})
	}
	recs[4].Error, recs[4].Panic = "", "kaboom"
	if err := st.AppendFaults(ctx, recs[:3]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendFaults(ctx, recs[3:]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendFrameStats(ctx, FrameStats{At: base, Frame: 42, FPS: 59.9, TimeScale: 1}); err != nil {
		t.Fatalf("frame stats: %v", err)
	}

	got, err := st.RecentFaults(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"h:2.1", "h:3.1", "h:4.1"} {
		if got[i].Participant != want {
			t.Fatalf("recent[%d] = %q, want %q", i, got[i].Participant, want)
		}
	}
	if got[2].Panic != "kaboom" || got[2].Error != "" {
		t.Fatalf("panic record = %+v", got[2])
	}
	if !got[0].At.Equal(recs[2].At) {
		t.Fatalf("at = %s, want %s", got[0].At, recs[2].At)
	}

	all, err := st.RecentFaults(ctx, 100)
	if err != nil || len(all) != 5 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "framesched.store")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "framesched.frames.jsonl")); err != nil {
		t.Fatalf("frames file: %v", err)
	}
	if err := st.AppendFaults(context.Background(), []FaultRecord{{Phase: "update"}}); err != ErrDisabled {
		t.Fatalf("append after close = %v, want ErrDisabled", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "framesched.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestSQLiteRetention(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "framesched.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, Retain: 2}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := FaultRecord{Phase: "late_update", Participant: fmt.Sprintf("h:%d.1", i), Error: "x"}
		if err := st.AppendFaults(ctx, []FaultRecord{rec}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := st.RecentFaults(ctx, 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Participant != "h:3.1" || got[1].Participant != "h:4.1" {
		t.Fatalf("retained = %+v", got)
	}
}
