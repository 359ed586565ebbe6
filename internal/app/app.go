package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"framesched/internal/config"
	"framesched/internal/diagnostics"
	"framesched/internal/eventbus"
	"framesched/internal/metrics"
	"framesched/internal/observability/diag"
	"framesched/internal/registry"
	rtsup "framesched/internal/runtime/supervisor"
	"framesched/internal/scheduler"
	"framesched/internal/storage"
	"framesched/internal/timescale"
	logx "framesched/pkg/logx"
	"framesched/pkg/systemd"
)

// App is the real-time host: it drives the scheduler from a ticker, applies
// config hot reloads between frames, flushes diagnostics to storage and
// serves the diagnostics endpoint.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics *metrics.Observer
	rec     *diagnostics.Recorder
	diag    *diag.Server
	sd      *systemd.Notifier

	life  *scheduler.Lifecycle
	sched *scheduler.Scheduler
	stats *frameStats
	// scale is the config-owned time-scale factor. Frame goroutine only.
	scale *timescale.Static
	loop  config.Loop

	pending  chan *config.Config
	calls    chan call
	loopDone chan struct{}

	cronMu    sync.Mutex
	cron      *cron.Cron
	flushID   cron.EntryID
	flushSpec string

	startedAt atomic.Int64
	lastTick  atomic.Int64
	interval  atomic.Int64
	stopOnce  sync.Once
}

type call struct {
	fn   func(*scheduler.Scheduler)
	done chan struct{}
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	ov, err := config.ParseEnv()
	if err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfgm.SetOverrides(ov)
	cfgm.SetValidator(ValidateConfig)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	opts, loop, err := schedulerOptions(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := mapDiagConfig(cfg)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	obs := metrics.New(true)
	opts.Logger = log
	opts.Bus = bus
	opts.Observer = obs

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		metrics:  obs,
		rec:      diagnostics.NewRecorder(cfg.Stats.HistoryOrDefault(), log),
		sd:       systemd.New(),
		life:     scheduler.NewLifecycle(opts),
		loop:     loop,
		scale:    &timescale.Static{Factor: loop.TimeScale},
		pending:  make(chan *config.Config, 1),
		calls:    make(chan call, 16),
		loopDone: make(chan struct{}),
	}
	a.interval.Store(int64(loop.Interval))

	// Built-ins are registered before the loop goroutine exists, which then
	// takes ownership of the scheduler.
	a.sched = a.life.Instance()
	a.stats = newFrameStats(a.sched.NewHandle(), bus)
	a.sched.AddUpdate(a.stats)
	a.sched.AddBackground(a.stats)
	a.sched.AddTimeScaleModifier(a.scale)

	a.diag = diag.New(dc, diag.Sources{
		Metrics: obs.Handler(),
		Health:  a.health,
		Status:  func() any { return a.Status() },
	}, log)

	return a, nil
}

// ValidateConfig checks the mappings the app applies on top of config.Validate.
func ValidateConfig(_ context.Context, cfg *config.Config) error {
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDiagConfig(cfg); err != nil {
		return err
	}
	_, _, err := schedulerOptions(cfg)
	return err
}

// Scheduler returns the hosted scheduler. Its update registries belong to the
// frame goroutine once Start runs; use Do to touch them from elsewhere.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

func (a *App) Recorder() *diagnostics.Recorder { return a.rec }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app run context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.startedAt.Store(time.Now().UnixNano())

	a.diag.Start(a.sup.Context())
	if err := a.startFlush(a.cfgm.Get().Stats.FlushOrDefault()); err != nil {
		return err
	}

	a.sup.Go("frame.loop", a.runLoop)
	a.sup.Go("diagnostics.recorder", func(c context.Context) error {
		return a.rec.Run(c, a.bus)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// frame stats arrive every frame; keep them below debug.
				if e.Type == eventbus.TypeFrameStats {
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return a.sd.Watchdog(c, iv, a.health)
		})
	}
	if sent, err := a.sd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Int("target_fps", a.loop.TargetFPS),
		logx.Duration("fixed_step", a.loop.Clock.FixedStep),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applyConfig runs on the config.reload goroutine. Frame-owned settings are
// handed to the loop through a.pending.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Debug("config change summary", fields...)
	_, _ = a.sd.Reloading()

	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.Restart, ",")))
	}
	if ch.Has("logging") {
		a.logs.Apply(newCfg.Logging.Logx())
	}
	if ch.Has("diag") {
		if dc, err := mapDiagConfig(newCfg); err != nil {
			a.log.Warn("invalid diag config; keeping previous", logx.Err(err))
		} else {
			a.diag.Reconfigure(ctx, dc)
		}
	}
	if ch.Has("stats") {
		a.rec.Resize(newCfg.Stats.HistoryOrDefault())
		if err := a.startFlush(newCfg.Stats.FlushOrDefault()); err != nil {
			a.log.Warn("invalid stats.flush; keeping previous", logx.Err(err))
		}
	}
	if ch.Has("loop") || ch.Has("worker") || ch.Has("logging") {
		a.handOff(newCfg)
	}

	_, _ = a.sd.Ready()
	_, _ = a.sd.Status("running; last reload %s", time.Now().Format(time.RFC3339))
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}

// handOff queues cfg for the frame goroutine, replacing anything not yet
// applied.
func (a *App) handOff(cfg *config.Config) {
	for {
		select {
		case a.pending <- cfg:
			return
		default:
		}
		select {
		case <-a.pending:
		default:
		}
	}
}

// Do runs fn on the frame goroutine between frames and waits for it.
func (a *App) Do(ctx context.Context, fn func(*scheduler.Scheduler)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case a.calls <- c:
	case <-a.loopDone:
		return scheduler.ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-a.loopDone:
		return scheduler.ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unregisters h from every phase on the frame goroutine, frees the
// handle and drops its fault count.
func (a *App) Release(ctx context.Context, h registry.Handle) error {
	freed := false
	err := a.Do(ctx, func(s *scheduler.Scheduler) {
		s.RemoveUpdate(h)
		s.RemoveFixedUpdate(h)
		s.RemoveLateUpdate(h)
		s.RemoveBackground(h)
		freed = s.ReleaseHandle(h)
	})
	if err != nil {
		return err
	}
	if !freed {
		return fmt.Errorf("release %s: stale handle", h)
	}
	a.rec.Forget(h)
	return nil
}

func (a *App) health() error {
	if !a.life.Running() {
		return errors.New("scheduler shut down")
	}
	limit := 10 * time.Duration(a.interval.Load())
	if limit < time.Second {
		limit = time.Second
	}
	last := a.lastTick.Load()
	if last == 0 {
		last = a.startedAt.Load()
	}
	if last == 0 {
		return nil
	}
	if since := time.Since(time.Unix(0, last)); since > limit {
		return fmt.Errorf("no frame for %s", since.Round(time.Millisecond))
	}
	return nil
}
