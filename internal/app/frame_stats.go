package app

import (
	"math"
	"sync/atomic"
	"time"

	"framesched/internal/clock"
	"framesched/internal/eventbus"
	"framesched/internal/registry"
)

// fpsSmoothing is the EWMA weight of the newest sample.
const fpsSmoothing = 0.1

// FrameRate is the payload of eventbus.TypeFrameStats.
type FrameRate struct {
	Frame uint64
	FPS   float64
	Scale float64
}

// frameStats measures the loop rate. It is an Update participant and a
// background participant, so the shipped binary runs the full three-step
// handoff every frame.
type frameStats struct {
	id  registry.Handle
	bus eventbus.Bus
	now func() time.Time

	// frame goroutine
	frame uint64
	scale float64

	// written by OnMainThreadUpdate, read by the worker
	snapFrame uint64
	snapScale float64
	snapAt    time.Time

	// worker
	prevFrame uint64
	prevAt    time.Time
	fps       float64

	fpsBits atomic.Uint64
}

func newFrameStats(id registry.Handle, bus eventbus.Bus) *frameStats {
	return &frameStats{id: id, bus: bus, now: time.Now}
}

func (s *frameStats) Handle() registry.Handle { return s.id }

func (s *frameStats) OnUpdate(f clock.Frame) error {
	s.frame = f.Number
	s.scale = f.Scale
	return nil
}

func (s *frameStats) OnMainThreadUpdate() error {
	s.snapFrame, s.snapScale, s.snapAt = s.frame, s.scale, s.now()
	return nil
}

func (s *frameStats) OnSeparateThreadUpdate() error {
	if !s.prevAt.IsZero() {
		if dt := s.snapAt.Sub(s.prevAt); dt > 0 && s.snapFrame > s.prevFrame {
			sample := float64(s.snapFrame-s.prevFrame) / dt.Seconds()
			if s.fps == 0 {
				s.fps = sample
			} else {
				s.fps += fpsSmoothing * (sample - s.fps)
			}
		}
	}
	s.prevFrame, s.prevAt = s.snapFrame, s.snapAt
	return nil
}

func (s *frameStats) OnSeparateThreadComplete() error {
	s.fpsBits.Store(math.Float64bits(s.fps))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeFrameStats,
		Time: s.snapAt,
		Data: FrameRate{Frame: s.snapFrame, FPS: s.fps, Scale: s.snapScale},
	})
	return nil
}

// FPS is safe from any goroutine.
func (s *frameStats) FPS() float64 { return math.Float64frombits(s.fpsBits.Load()) }
