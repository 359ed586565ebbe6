package app

import (
	"context"
	"errors"
	"time"

	"framesched/internal/config"
	"framesched/internal/scheduler"
	logx "framesched/pkg/logx"
)

// runLoop is the frame goroutine. It owns a.sched from here on.
func (a *App) runLoop(ctx context.Context) error {
	defer close(a.loopDone)
	s := a.sched
	interval := time.Duration(a.interval.Load())
	t := time.NewTicker(interval)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-a.pending:
			if iv, ok := a.applyLoop(s, cfg); ok && iv != interval {
				interval = iv
				t.Reset(interval)
			}
		case c := <-a.calls:
			c.fn(s)
			close(c.done)
		case now := <-t.C:
			elapsed := now.Sub(last)
			last = now
			if err := s.Frame(elapsed); err != nil {
				if errors.Is(err, scheduler.ErrShutdown) {
					a.log.Debug("frame loop exiting: scheduler shut down")
					return nil
				}
				return err
			}
			a.lastTick.Store(now.UnixNano())
		}
	}
}

// applyLoop applies frame-owned settings between frames and returns the new
// tick interval.
func (a *App) applyLoop(s *scheduler.Scheduler, cfg *config.Config) (time.Duration, bool) {
	opts, loop, err := schedulerOptions(cfg)
	if err != nil {
		a.log.Warn("invalid loop config; keeping previous", logx.Err(err))
		return 0, false
	}
	s.Reconfigure(loop.Clock)
	// picked up by the composer at the start of the next frame
	a.scale.Factor = loop.TimeScale
	s.SetBackgroundEnabled(!opts.DisableBackground)
	s.SetFaultLogRate(opts.FaultLogRate, opts.FaultLogBurst)
	a.interval.Store(int64(loop.Interval))
	a.log.Debug("loop config applied",
		logx.Int("target_fps", loop.TargetFPS),
		logx.Float64("time_scale", loop.TimeScale),
		logx.Bool("background", !opts.DisableBackground),
	)
	return loop.Interval, true
}
