package scheduler

import (
	"sync"
	"sync/atomic"

	"framesched/internal/eventbus"
	logx "framesched/pkg/logx"
)

// guard is the one-way running flag shared by a Lifecycle and its instance.
type guard struct {
	stopped atomic.Bool
}

func (g *guard) Running() bool { return !g.stopped.Load() }

// stop reports true only for the call that performed the transition.
func (g *guard) stop() bool { return g.stopped.CompareAndSwap(false, true) }

// Shutdown flips the scheduler to stopped. Registration becomes a no-op,
// ticks return ErrShutdown, and an in-flight background cycle is abandoned:
// its worker goroutine finishes on its own and RunComplete never runs.
// Only the first call does anything.
func (s *Scheduler) Shutdown() bool {
	if !s.guard.stop() {
		return false
	}
	s.shutdown()
	return true
}

// shutdown may run on any goroutine, so it reads only the published stats
// and never the frame-owned clock, registries or composer.
func (s *Scheduler) shutdown() {
	s.cycleMu.Lock()
	cy := s.cycle
	s.cycle = nil
	s.cycleMu.Unlock()

	abandoned := cy != nil && cy.Abandon()
	st := s.LastStats()
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeShutdown, Data: st})
	s.log.Info("scheduler shut down",
		logx.Bool("abandoned_cycle", abandoned),
		logx.Uint64("frames", st.Frame),
		logx.Uint64("faults", st.Faults),
		logx.Uint64("suppressed_fault_logs", s.fault.Suppressed()),
	)
}

// Lifecycle owns at most one Scheduler. While running, Instance creates it on
// first use; after Shutdown, Instance returns nil forever.
type Lifecycle struct {
	opts  Options
	guard *guard

	mu   sync.Mutex
	inst *Scheduler
}

func NewLifecycle(opts Options) *Lifecycle {
	return &Lifecycle{opts: opts, guard: &guard{}}
}

func (l *Lifecycle) Running() bool { return l.guard.Running() }

// Instance returns the live scheduler or nil after shutdown.
func (l *Lifecycle) Instance() *Scheduler {
	if !l.guard.Running() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check under the lock so a concurrent Shutdown cannot be followed by
	// a fresh instance.
	if !l.guard.Running() {
		return nil
	}
	if l.inst == nil {
		l.inst = newScheduler(l.opts, l.guard)
	}
	return l.inst
}

// Shutdown stops the lifecycle and its instance if one was created. Calling
// Shutdown on the instance directly has the same effect.
func (l *Lifecycle) Shutdown() bool {
	l.mu.Lock()
	inst := l.inst
	stopped := l.guard.stop()
	l.mu.Unlock()
	if !stopped {
		return false
	}
	if inst != nil {
		inst.shutdown()
	}
	return true
}
