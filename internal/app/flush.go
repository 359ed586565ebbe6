package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"framesched/internal/storage"
	logx "framesched/pkg/logx"
)

const flushTimeout = 5 * time.Second

// startFlush (re)schedules the storage flush on spec. It is a no-op without
// a store.
func (a *App) startFlush(spec string) error {
	if a.store == nil {
		return nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return err
	}

	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.cron == nil {
		a.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		a.cron.Start()
	}
	if a.flushSpec == spec && a.flushID != 0 {
		return nil
	}
	if a.flushID != 0 {
		a.cron.Remove(a.flushID)
	}
	a.flushID = a.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		a.flush(ctx)
	}))
	a.flushSpec = spec
	a.log.Debug("stats flush scheduled", logx.String("spec", spec))
	return nil
}

func (a *App) stopFlush(ctx context.Context) {
	a.cronMu.Lock()
	c := a.cron
	a.cron = nil
	a.flushID = 0
	a.cronMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// flush writes pending faults and one frame stats row. Faults that fail to
// write go back to the recorder for the next run.
func (a *App) flush(ctx context.Context) {
	if a.store == nil {
		return
	}
	if recs := a.rec.Drain(); len(recs) > 0 {
		if err := a.store.AppendFaults(ctx, recs); err != nil {
			a.rec.Requeue(recs)
			a.log.Warn("fault flush failed", logx.Int("records", len(recs)), logx.Err(err))
		}
	}

	st := a.sched.LastStats()
	row := storage.FrameStats{
		At:          time.Now(),
		Frame:       st.Frame,
		FPS:         a.stats.FPS(),
		TimeScale:   st.TimeScale,
		Update:      st.Update,
		FixedUpdate: st.FixedUpdate,
		LateUpdate:  st.LateUpdate,
		Background:  st.Background,
		Faults:      st.Faults,
		DroppedMS:   st.DroppedFixed.Milliseconds(),
	}
	if err := a.store.AppendFrameStats(ctx, row); err != nil {
		a.log.Warn("frame stats flush failed", logx.Err(err))
	}
}
