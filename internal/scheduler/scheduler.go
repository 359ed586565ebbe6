package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"framesched/internal/clock"
	"framesched/internal/eventbus"
	"framesched/internal/phase"
	"framesched/internal/registry"
	"framesched/internal/timescale"
	"framesched/internal/worker"
	logx "framesched/pkg/logx"
)

// ErrShutdown is returned by tick calls once the scheduler was shut down.
var ErrShutdown = errors.New("scheduler: shut down")

// Scheduler dispatches registered participants through the frame phases.
//
// The update, fixed-update and late-update registries, the clock and the
// time-scale composer belong to the frame goroutine: the goroutine calling
// the tick methods. Register with them only from that goroutine, which
// includes from inside callbacks. Background registration is locked and may
// come from anywhere.
type Scheduler struct {
	opts  Options
	log   logx.Logger
	fault *logx.Limited
	bus   eventbus.Bus
	obs   Observer
	guard *guard

	arena *registry.Arena
	clock *clock.Clock
	scale *timescale.Composer

	update *registry.Registry[Updatable]
	fixed  *registry.Registry[FixedUpdatable]
	late   *registry.Registry[LateUpdatable]
	coord  *worker.Coordinator

	bgEnabled atomic.Bool

	cycleMu sync.Mutex
	cycle   *worker.Cycle

	faults atomic.Uint64
	last   atomic.Pointer[Stats]
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Frame         uint64
	Update        int
	FixedUpdate   int
	LateUpdate    int
	Background    int
	Modifiers     int
	TimeScale     float64
	CycleInFlight bool
	Faults        uint64
	Running       bool
	// DroppedFixed is fixed-step time discarded by the per-frame cap.
	DroppedFixed time.Duration
}

// New returns a running scheduler with its own lifecycle guard.
func New(opts Options) *Scheduler {
	return newScheduler(opts, &guard{})
}

func newScheduler(opts Options, g *guard) *Scheduler {
	opts = opts.withDefaults()
	log := opts.Logger.With(logx.String("comp", "scheduler"))
	s := &Scheduler{
		opts:   opts,
		log:    log,
		fault:  logx.NewLimited(log, opts.FaultLogRate, opts.FaultLogBurst),
		bus:    opts.Bus,
		obs:    opts.Observer,
		guard:  g,
		arena:  registry.NewArena(),
		clock:  clock.New(opts.Clock),
		scale:  timescale.NewComposer(),
		update: registry.New[Updatable](16),
		fixed:  registry.New[FixedUpdatable](16),
		late:   registry.New[LateUpdatable](16),
	}
	s.coord = worker.NewCoordinator(s.report)
	s.bgEnabled.Store(!opts.DisableBackground)
	s.obs.TimeScale(s.scale.Scale())
	s.publishStats()
	return s
}

// Running reports whether the scheduler accepts registrations and ticks.
func (s *Scheduler) Running() bool { return s.guard.Running() }

// NewHandle allocates a participant identity.
func (s *Scheduler) NewHandle() registry.Handle { return s.arena.Alloc() }

// ReleaseHandle frees h for reuse. Stale copies of h stop comparing equal to
// the reissued handle.
func (s *Scheduler) ReleaseHandle(h registry.Handle) bool { return s.arena.Release(h) }

// ---- registration ----

func (s *Scheduler) AddUpdate(u Updatable) bool {
	if u == nil || !s.guard.Running() {
		return false
	}
	ok := s.update.AddUnique(registry.Entry[Updatable]{ID: u.Handle(), Value: u})
	s.sized(phase.Update, ok, s.update.Len())
	return ok
}

func (s *Scheduler) RemoveUpdate(id registry.Handle) bool {
	if !s.guard.Running() {
		return false
	}
	ok := s.update.RemoveSwapBack(id)
	s.sized(phase.Update, ok, s.update.Len())
	return ok
}

func (s *Scheduler) AddFixedUpdate(u FixedUpdatable) bool {
	if u == nil || !s.guard.Running() {
		return false
	}
	ok := s.fixed.AddUnique(registry.Entry[FixedUpdatable]{ID: u.Handle(), Value: u})
	s.sized(phase.FixedUpdate, ok, s.fixed.Len())
	return ok
}

func (s *Scheduler) RemoveFixedUpdate(id registry.Handle) bool {
	if !s.guard.Running() {
		return false
	}
	ok := s.fixed.RemoveSwapBack(id)
	s.sized(phase.FixedUpdate, ok, s.fixed.Len())
	return ok
}

func (s *Scheduler) AddLateUpdate(u LateUpdatable) bool {
	if u == nil || !s.guard.Running() {
		return false
	}
	ok := s.late.AddUnique(registry.Entry[LateUpdatable]{ID: u.Handle(), Value: u})
	s.sized(phase.LateUpdate, ok, s.late.Len())
	return ok
}

func (s *Scheduler) RemoveLateUpdate(id registry.Handle) bool {
	if !s.guard.Running() {
		return false
	}
	ok := s.late.RemoveSwapBack(id)
	s.sized(phase.LateUpdate, ok, s.late.Len())
	return ok
}

// AddBackground registers u with the worker coordinator. Safe from any
// goroutine; a registration landing while a cycle runs joins the next one.
func (s *Scheduler) AddBackground(u BackgroundUpdatable) bool {
	if u == nil || !s.guard.Running() {
		return false
	}
	ok := s.coord.AddUpdatable(u)
	s.sized(phase.SeparateThreadUpdate, ok, s.coord.Len())
	return ok
}

func (s *Scheduler) RemoveBackground(id registry.Handle) bool {
	if !s.guard.Running() {
		return false
	}
	ok := s.coord.RemoveUpdatable(id)
	s.sized(phase.SeparateThreadUpdate, ok, s.coord.Len())
	return ok
}

func (s *Scheduler) sized(p phase.Phase, changed bool, n int) {
	if changed {
		s.obs.RegistrySize(p, n)
	}
}

// SetBackgroundEnabled toggles cycle dispatch. A cycle already in flight is
// still joined.
func (s *Scheduler) SetBackgroundEnabled(on bool) { s.bgEnabled.Store(on) }

// ---- time scale ----

func (s *Scheduler) AddTimeScaleModifier(m timescale.Modifier) bool {
	if !s.guard.Running() {
		return false
	}
	if !s.scale.Add(m) {
		return false
	}
	s.obs.TimeScale(s.scale.Scale())
	return true
}

func (s *Scheduler) RemoveTimeScaleModifier(m timescale.Modifier) bool {
	if !s.guard.Running() {
		return false
	}
	if !s.scale.Remove(m) {
		return false
	}
	s.obs.TimeScale(s.scale.Scale())
	return true
}

// TimeScale returns the composed scale as of the last recompute.
func (s *Scheduler) TimeScale() float64 { return s.scale.Scale() }

// TimeScaleExcept folds every active modifier except the given ones.
func (s *Scheduler) TimeScaleExcept(mods ...timescale.Modifier) float64 {
	return s.scale.ScaleExcept(mods...)
}

func (s *Scheduler) recomputeScale() float64 {
	before := s.scale.Scale()
	v := s.scale.Recompute()
	if v != before {
		s.obs.TimeScale(v)
	}
	return v
}

// Reconfigure swaps clock settings. Call between frames.
func (s *Scheduler) Reconfigure(cfg clock.Config) {
	s.clock.Reconfigure(cfg)
	s.log.Debug("clock reconfigured",
		logx.Duration("fixed_step", s.clock.Config().FixedStep),
		logx.Duration("max_delta", s.clock.Config().MaxDelta),
		logx.Int("max_fixed_steps", s.clock.Config().MaxFixedSteps),
	)
}

// SetFaultLogRate adjusts fault log throttling. Zero values take the same
// defaults as Options.
func (s *Scheduler) SetFaultLogRate(perSec float64, burst int) {
	o := Options{FaultLogRate: perSec, FaultLogBurst: burst}.withDefaults()
	s.fault.SetRate(o.FaultLogRate, o.FaultLogBurst)
}

// ---- stats ----

// Stats computes a fresh view. Call from the frame goroutine; use LastStats
// elsewhere.
func (s *Scheduler) Stats() Stats {
	s.cycleMu.Lock()
	inFlight := s.cycle != nil
	s.cycleMu.Unlock()
	return Stats{
		Frame:         s.clock.Number(),
		Update:        s.update.Len(),
		FixedUpdate:   s.fixed.Len(),
		LateUpdate:    s.late.Len(),
		Background:    s.coord.Len(),
		Modifiers:     s.scale.Len(),
		TimeScale:     s.scale.Scale(),
		CycleInFlight: inFlight,
		Faults:        s.faults.Load(),
		Running:       s.guard.Running(),
		DroppedFixed:  s.clock.Dropped(),
	}
}

// LastStats returns the view published at the end of the last frame. Safe
// from any goroutine.
func (s *Scheduler) LastStats() Stats {
	var st Stats
	if p := s.last.Load(); p != nil {
		st = *p
	}
	s.cycleMu.Lock()
	st.CycleInFlight = s.cycle != nil
	s.cycleMu.Unlock()
	st.Faults = s.faults.Load()
	st.Running = s.guard.Running()
	return st
}

func (s *Scheduler) publishStats() {
	st := s.Stats()
	s.last.Store(&st)
}

// ---- faults ----

// report is the single sink for every fault. It may run on the worker
// goroutine.
func (s *Scheduler) report(f *phase.Fault) {
	if f == nil {
		return
	}
	s.faults.Add(1)
	s.obs.Fault(f)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeFault, Time: f.At, Data: f})

	fields := []logx.Field{
		logx.Stringer("phase", f.Phase),
		logx.Stringer("participant", f.ID),
	}
	if f.Panic != nil {
		fields = append(fields, logx.Any("panic", f.Panic), logx.Stack(f.Stack))
		s.fault.Error("participant panicked", fields...)
		return
	}
	fields = append(fields, logx.Err(f.Err))
	s.fault.Warn("participant failed", fields...)
}
