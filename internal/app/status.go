package app

import (
	"time"

	"framesched/internal/runtime/supervisor"
	"framesched/internal/scheduler"
	"framesched/internal/storage"
)

// Status is served on /status.
type Status struct {
	Uptime     string                `json:"uptime"`
	Healthy    bool                  `json:"healthy"`
	Health     string                `json:"health,omitempty"`
	FPS        float64               `json:"fps"`
	Scheduler  SchedulerStatus       `json:"scheduler"`
	TopFaults  []ParticipantStatus   `json:"top_faults,omitempty"`
	Recent     []storage.FaultRecord `json:"recent_faults,omitempty"`
	BusDropped uint64                `json:"bus_dropped"`
	Supervisor *supervisor.Snapshot  `json:"supervisor,omitempty"`
}

type SchedulerStatus struct {
	Running       bool    `json:"running"`
	Frame         uint64  `json:"frame"`
	TimeScale     float64 `json:"time_scale"`
	Update        int     `json:"update"`
	FixedUpdate   int     `json:"fixed_update"`
	LateUpdate    int     `json:"late_update"`
	Background    int     `json:"background"`
	Modifiers     int     `json:"modifiers"`
	CycleInFlight bool    `json:"cycle_in_flight"`
	Faults        uint64  `json:"faults"`
	DroppedFixed  string  `json:"dropped_fixed"`
}

type ParticipantStatus struct {
	Participant string `json:"participant"`
	Faults      uint64 `json:"faults"`
}

const statusTopN = 10

// Status is safe from any goroutine.
func (a *App) Status() Status {
	st := Status{
		FPS:        a.stats.FPS(),
		Scheduler:  schedulerStatus(a.sched.LastStats()),
		Recent:     a.rec.Recent(),
		BusDropped: a.bus.Dropped(),
	}
	if at := a.startedAt.Load(); at != 0 {
		st.Uptime = time.Since(time.Unix(0, at)).Round(time.Second).String()
	}
	if err := a.health(); err != nil {
		st.Health = err.Error()
	} else {
		st.Healthy = true
	}
	for _, p := range a.rec.Top(statusTopN) {
		st.TopFaults = append(st.TopFaults, ParticipantStatus{Participant: p.Participant.String(), Faults: p.Faults})
	}
	if a.sup != nil {
		snap := a.sup.Snapshot()
		st.Supervisor = &snap
	}
	return st
}

func schedulerStatus(s scheduler.Stats) SchedulerStatus {
	return SchedulerStatus{
		Running:       s.Running,
		Frame:         s.Frame,
		TimeScale:     s.TimeScale,
		Update:        s.Update,
		FixedUpdate:   s.FixedUpdate,
		LateUpdate:    s.LateUpdate,
		Background:    s.Background,
		Modifiers:     s.Modifiers,
		CycleInFlight: s.CycleInFlight,
		Faults:        s.Faults,
		DroppedFixed:  s.DroppedFixed.String(),
	}
}
