package clock

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNegativeDuration = errors.New("clock: negative elapsed duration")

const (
	DefaultFixedStep     = 20 * time.Millisecond
	DefaultMaxDelta      = 333 * time.Millisecond
	DefaultMaxFixedSteps = 8
)

// Config controls delta clamping and the fixed-step cadence.
type Config struct {
	// FixedStep is the simulated duration of one FixedUpdate.
	FixedStep time.Duration
	// MaxDelta bounds the per-frame delta so a long stall does not explode
	// the simulation.
	MaxDelta time.Duration
	// MaxFixedSteps caps FixedUpdate invocations per frame. Accumulated time
	// beyond the cap is dropped.
	MaxFixedSteps int
}

func (c Config) withDefaults() Config {
	if c.FixedStep <= 0 {
		c.FixedStep = DefaultFixedStep
	}
	if c.MaxDelta <= 0 {
		c.MaxDelta = DefaultMaxDelta
	}
	if c.MaxFixedSteps <= 0 {
		c.MaxFixedSteps = DefaultMaxFixedSteps
	}
	return c
}

// Frame is the transient per-tick record handed to callbacks.
type Frame struct {
	Number uint64
	// Elapsed is the raw value the host supplied.
	Elapsed time.Duration
	// UnscaledDelta is Elapsed clamped to MaxDelta.
	UnscaledDelta time.Duration
	// Delta is UnscaledDelta multiplied by Scale.
	Delta time.Duration
	Scale float64

	Time         time.Duration
	UnscaledTime time.Duration

	FixedStep time.Duration
	// Fixed is true for frames passed to FixedUpdate.
	Fixed bool
}

// Seconds returns Delta in seconds.
func (f Frame) Seconds() float64 { return f.Delta.Seconds() }

// Clock turns host-supplied elapsed times into clamped, scaled frames.
//
// Clock is owned by the frame goroutine and is not locked.
type Clock struct {
	cfg Config

	number       uint64
	time         time.Duration
	unscaledTime time.Duration
	accumulator  time.Duration
	fixedTime    time.Duration

	dropped time.Duration
}

func New(cfg Config) *Clock {
	return &Clock{cfg: cfg.withDefaults()}
}

func (c *Clock) Config() Config { return c.cfg }

// Reconfigure swaps clamping and cadence settings. The accumulator is kept.
func (c *Clock) Reconfigure(cfg Config) { c.cfg = cfg.withDefaults() }

// Clamp validates elapsed and bounds it to MaxDelta.
func (c *Clock) Clamp(elapsed time.Duration) (time.Duration, error) {
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegativeDuration, elapsed)
	}
	if elapsed > c.cfg.MaxDelta {
		return c.cfg.MaxDelta, nil
	}
	return elapsed, nil
}

// Begin starts a new variable-rate frame.
func (c *Clock) Begin(elapsed time.Duration, scale float64) (Frame, error) {
	d, err := c.Clamp(elapsed)
	if err != nil {
		return Frame{}, err
	}
	c.number++
	scaled := scaleDuration(d, scale)
	c.time = addSat(c.time, scaled)
	c.unscaledTime += d
	return Frame{
		Number:        c.number,
		Elapsed:       elapsed,
		UnscaledDelta: d,
		Delta:         scaled,
		Scale:         scale,
		Time:          c.time,
		UnscaledTime:  c.unscaledTime,
		FixedStep:     c.cfg.FixedStep,
	}, nil
}

// Current describes the most recent frame without advancing.
func (c *Clock) Current(elapsed time.Duration, scale float64) (Frame, error) {
	d, err := c.Clamp(elapsed)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Number:        c.number,
		Elapsed:       elapsed,
		UnscaledDelta: d,
		Delta:         scaleDuration(d, scale),
		Scale:         scale,
		Time:          c.time,
		UnscaledTime:  c.unscaledTime,
		FixedStep:     c.cfg.FixedStep,
	}, nil
}

// Accumulate adds unscaled*scale to the fixed-step accumulator and returns how
// many FixedUpdate steps are due, capped at MaxFixedSteps.
func (c *Clock) Accumulate(unscaled time.Duration, scale float64) int {
	if unscaled <= 0 || scale <= 0 {
		return 0
	}
	c.accumulator = addSat(c.accumulator, scaleDuration(unscaled, scale))
	steps := int(c.accumulator / c.cfg.FixedStep)
	if steps > c.cfg.MaxFixedSteps {
		over := time.Duration(steps-c.cfg.MaxFixedSteps) * c.cfg.FixedStep
		c.dropped = addSat(c.dropped, over)
		c.accumulator -= over
		steps = c.cfg.MaxFixedSteps
	}
	c.accumulator -= time.Duration(steps) * c.cfg.FixedStep
	return steps
}

// Fixed builds the frame for one FixedUpdate of length step.
func (c *Clock) Fixed(step time.Duration, scale float64) (Frame, error) {
	d, err := c.Clamp(step)
	if err != nil {
		return Frame{}, err
	}
	c.fixedTime += d
	return Frame{
		Number:        c.number,
		Elapsed:       step,
		UnscaledDelta: d,
		Delta:         d,
		Scale:         scale,
		Time:          c.fixedTime,
		UnscaledTime:  c.unscaledTime,
		FixedStep:     c.cfg.FixedStep,
		Fixed:         true,
	}, nil
}

// Pending returns time accumulated toward the next fixed step.
func (c *Clock) Pending() time.Duration { return c.accumulator }

// Dropped returns total fixed time discarded by the MaxFixedSteps cap.
func (c *Clock) Dropped() time.Duration { return c.dropped }

// Number returns the count of frames begun.
func (c *Clock) Number() uint64 { return c.number }

func scaleDuration(d time.Duration, scale float64) time.Duration {
	if scale == 1 {
		return d
	}
	if scale <= 0 || math.IsNaN(scale) {
		return 0
	}
	// d is never negative here, so only the upper bound can overflow.
	if v := float64(d) * scale; v < math.MaxInt64 {
		return time.Duration(v)
	}
	return math.MaxInt64
}

// addSat adds a non-negative d to t, sticking at the largest Duration.
func addSat(t, d time.Duration) time.Duration {
	if d > math.MaxInt64-t {
		return math.MaxInt64
	}
	return t + d
}
