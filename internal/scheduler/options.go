package scheduler

import (
	"time"

	"framesched/internal/clock"
	"framesched/internal/eventbus"
	"framesched/internal/phase"
	"framesched/internal/worker"
	logx "framesched/pkg/logx"
)

// Options configures a Scheduler.
type Options struct {
	Clock    clock.Config
	Logger   logx.Logger
	Bus      eventbus.Bus
	Observer Observer

	// FaultLogRate limits fault log lines per second (default 5, burst 10).
	// Every fault is still counted, observed and published.
	FaultLogRate  float64
	FaultLogBurst int

	// DisableBackground stops dispatching worker cycles. Registrations are kept.
	DisableBackground bool
}

func (o Options) withDefaults() Options {
	if o.Logger.IsZero() {
		o.Logger = logx.Nop()
	}
	if o.Bus == nil {
		o.Bus = eventbus.Nop()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.FaultLogRate == 0 {
		o.FaultLogRate = 5
	}
	if o.FaultLogBurst <= 0 {
		o.FaultLogBurst = 10
	}
	return o
}

// Observer receives scheduler measurements. Fault may be called from the
// worker goroutine; everything else runs on the frame goroutine.
type Observer interface {
	PhaseDone(p phase.Phase, took time.Duration, visited, faults int)
	Fault(f *phase.Fault)
	CycleJoined(r worker.Result)
	FrameDone(f clock.Frame, fixedSteps int)
	TimeScale(v float64)
	RegistrySize(p phase.Phase, n int)
}

type NopObserver struct{}

func (NopObserver) PhaseDone(phase.Phase, time.Duration, int, int) {}
func (NopObserver) Fault(*phase.Fault)                             {}
func (NopObserver) CycleJoined(worker.Result)                      {}
func (NopObserver) FrameDone(clock.Frame, int)                     {}
func (NopObserver) TimeScale(float64)                              {}
func (NopObserver) RegistrySize(phase.Phase, int)                  {}
