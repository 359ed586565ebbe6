package scheduler

import (
	"time"

	"framesched/internal/clock"
	"framesched/internal/eventbus"
	"framesched/internal/phase"
	"framesched/internal/registry"
	"framesched/internal/worker"
	logx "framesched/pkg/logx"
)

// Update runs the start of a frame: recompute the scale, join the previous
// background cycle, run the update phase, recompute the scale again.
func (s *Scheduler) Update(elapsed time.Duration) error {
	_, err := s.beginFrame(elapsed)
	return err
}

func (s *Scheduler) beginFrame(elapsed time.Duration) (clock.Frame, error) {
	if !s.guard.Running() {
		return clock.Frame{}, ErrShutdown
	}
	if _, err := s.clock.Clamp(elapsed); err != nil {
		return clock.Frame{}, err
	}

	s.recomputeScale()
	s.joinCycle()
	if !s.guard.Running() {
		return clock.Frame{}, ErrShutdown
	}

	f, err := s.clock.Begin(elapsed, s.scale.Scale())
	if err != nil {
		return clock.Frame{}, err
	}
	runPhase(s, phase.Update, s.update, func(u Updatable) error { return u.OnUpdate(f) })
	s.recomputeScale()
	return f, nil
}

// FixedUpdate runs the fixed-update phase once with a step of elapsed.
func (s *Scheduler) FixedUpdate(elapsed time.Duration) error {
	if !s.guard.Running() {
		return ErrShutdown
	}
	f, err := s.clock.Fixed(elapsed, s.scale.Scale())
	if err != nil {
		return err
	}
	runPhase(s, phase.FixedUpdate, s.fixed, func(u FixedUpdatable) error { return u.OnFixedUpdate(f) })
	return nil
}

// LateUpdate runs the late-update phase, then dispatches a background cycle
// when any background participant is registered.
func (s *Scheduler) LateUpdate(elapsed time.Duration) error {
	if !s.guard.Running() {
		return ErrShutdown
	}
	f, err := s.clock.Current(elapsed, s.scale.Scale())
	if err != nil {
		return err
	}
	runPhase(s, phase.LateUpdate, s.late, func(u LateUpdatable) error { return u.OnLateUpdate(f) })
	s.dispatchCycle()
	s.publishStats()
	return nil
}

// Frame runs one whole tick: Update, as many FixedUpdate steps as the
// accumulated scaled time allows, LateUpdate and the background dispatch.
func (s *Scheduler) Frame(elapsed time.Duration) error {
	f, err := s.beginFrame(elapsed)
	if err != nil {
		return err
	}

	droppedBefore := s.clock.Dropped()
	steps := s.clock.Accumulate(f.UnscaledDelta, s.scale.Scale())
	step := s.clock.Config().FixedStep
	for i := 0; i < steps; i++ {
		if err := s.FixedUpdate(step); err != nil {
			return err
		}
	}
	if d := s.clock.Dropped() - droppedBefore; d > 0 {
		s.log.Debug("fixed steps capped", logx.Duration("dropped", d), logx.Uint64("frame", f.Number))
	}

	if err := s.LateUpdate(elapsed); err != nil {
		return err
	}
	s.obs.FrameDone(f, steps)
	return nil
}

// runPhase applies the isolation policy to one registry and records timing.
func runPhase[T any](s *Scheduler, p phase.Phase, reg *registry.Registry[T], call func(T) error) {
	start := time.Now()
	visited, faults := phase.Iterate[T](p, reg, call, s.report)
	s.obs.PhaseDone(p, time.Since(start), visited, faults)
}

func (s *Scheduler) joinCycle() {
	s.cycleMu.Lock()
	cy := s.cycle
	s.cycle = nil
	s.cycleMu.Unlock()
	if cy == nil {
		return
	}

	// A Shutdown landing while we wait finds no cycle to abandon, so the
	// join re-checks the guard before RunComplete.
	res, ok := cy.JoinIf(s.guard.Running)
	if !ok {
		if cy.State() == worker.StateAbandoned {
			s.log.Debug("background cycle abandoned at join", logx.Int("entries", cy.Len()))
		}
		return
	}
	s.obs.CycleJoined(res)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleJoined, Data: res})
	if res.Wait > 0 {
		s.log.Trace("joined background cycle",
			logx.Int("entries", res.Entries),
			logx.Duration("run", res.RunDuration),
			logx.Duration("wait", res.Wait),
			logx.Duration("age", time.Since(cy.DispatchedAt())),
		)
	}
}

func (s *Scheduler) dispatchCycle() {
	if !s.bgEnabled.Load() || !s.coord.ShouldRun() {
		return
	}
	s.cycleMu.Lock()
	busy := s.cycle != nil
	s.cycleMu.Unlock()
	if busy {
		// LateUpdate called twice without an Update in between.
		return
	}

	cy := s.coord.Dispatch()
	if cy == nil {
		return
	}
	s.cycleMu.Lock()
	if !s.guard.Running() {
		s.cycleMu.Unlock()
		cy.Abandon()
		return
	}
	s.cycle = cy
	s.cycleMu.Unlock()
}
