package diag

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "framesched/pkg/logx"
)

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	healthy := true
	s := New(Config{}, Sources{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "m 1\n") }),
		Health: func() error {
			if healthy {
				return nil
			}
			return errors.New("frame loop stalled")
		},
		Status: func() any { return map[string]int{"frames": 7} },
	}, logx.Nop())
	h := s.Handler(Config{MetricsPath: "stats", Token: "s3cret", Pprof: true})

	get := func(path string, hdr ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		if len(hdr) == 2 {
			req.Header.Set(hdr[0], hdr[1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := get("/healthz"); rec.Code != 200 {
		t.Fatalf("healthz = %d", rec.Code)
	}
	healthy = false
	if rec := get("/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy healthz = %d", rec.Code)
	}

	if rec := get("/stats"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("metrics without token = %d", rec.Code)
	}
	if rec := get("/stats", "Authorization", "Bearer s3cret"); rec.Code != 200 || rec.Body.String() != "m 1\n" {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get("/status?token=s3cret"); rec.Code != 200 || !strings.Contains(rec.Body.String(), `"frames": 7`) {
		t.Fatalf("status = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get("/status?token=wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
	if rec := get("/debug/pprof/cmdline?token=s3cret"); rec.Code != 200 {
		t.Fatalf("pprof = %d", rec.Code)
	}
}

func TestPprofOff(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Sources{}, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest("GET", "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Sources{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server did not bind")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatal("addr should clear after stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"bogus":          false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
