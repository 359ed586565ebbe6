package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"framesched/internal/app"
	"framesched/internal/config"
)

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("fatal: %v", err), 1)
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return cli.NewExitError(fmt.Sprintf("fatal start: %v", err), 1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), c.Duration("stop-timeout"))
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return cli.NewExitError(fmt.Sprintf("fatal: %v", err), 1)
		}
	}
	return nil
}

func check(c *cli.Context) error {
	path := c.String("config")
	m := config.NewConfigManager(path)
	ov, err := config.ParseEnv()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("env: %v", err), 1)
	}
	m.SetOverrides(ov)
	m.SetValidator(app.ValidateConfig)
	cfg, err := m.Load(context.Background())
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("%s: %v", path, err), 1)
	}
	loop, err := cfg.Loop.Resolve()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	fmt.Printf("config:          %s (ok)\n", path)
	fmt.Printf("target fps:      %d (interval %s)\n", loop.TargetFPS, loop.Interval)
	fmt.Printf("fixed step:      %s, max delta %s, max steps %d\n",
		loop.Clock.FixedStep, loop.Clock.MaxDelta, loop.Clock.MaxFixedSteps)
	fmt.Printf("time scale:      %g\n", loop.TimeScale)
	fmt.Printf("background:      %t\n", cfg.Worker.IsEnabled())
	fmt.Printf("storage:         %s\n", cfg.Storage.DriverName())
	fmt.Printf("stats flush:     %s (history %d)\n", cfg.Stats.FlushOrDefault(), cfg.Stats.HistoryOrDefault())
	if cfg.Diag.Enabled {
		fmt.Printf("diag:            %s%s (pprof %t)\n", cfg.Diag.AddrOrDefault(), cfg.Diag.MetricsPathOrDefault(), cfg.Diag.Pprof)
	} else {
		fmt.Println("diag:            disabled")
	}
	if !ov.IsZero() {
		fmt.Println("env overrides:   applied")
	}
	return nil
}
