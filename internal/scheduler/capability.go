package scheduler

import (
	"framesched/internal/clock"
	"framesched/internal/registry"
	"framesched/internal/worker"
)

// Participant is anything registered with the scheduler. The handle is its
// identity in every registry it joins.
type Participant interface {
	Handle() registry.Handle
}

type Updatable interface {
	Participant
	OnUpdate(f clock.Frame) error
}

type FixedUpdatable interface {
	Participant
	OnFixedUpdate(f clock.Frame) error
}

type LateUpdatable interface {
	Participant
	OnLateUpdate(f clock.Frame) error
}

// BackgroundUpdatable is re-exported so consumers only import scheduler.
type BackgroundUpdatable = worker.Updatable

// UpdateFunc adapts a closure to Updatable.
type UpdateFunc struct {
	ID registry.Handle
	Fn func(f clock.Frame) error
}

func (u *UpdateFunc) Handle() registry.Handle { return u.ID }

func (u *UpdateFunc) OnUpdate(f clock.Frame) error {
	if u.Fn == nil {
		return nil
	}
	return u.Fn(f)
}

// FixedUpdateFunc adapts a closure to FixedUpdatable.
type FixedUpdateFunc struct {
	ID registry.Handle
	Fn func(f clock.Frame) error
}

func (u *FixedUpdateFunc) Handle() registry.Handle { return u.ID }

func (u *FixedUpdateFunc) OnFixedUpdate(f clock.Frame) error {
	if u.Fn == nil {
		return nil
	}
	return u.Fn(f)
}

// LateUpdateFunc adapts a closure to LateUpdatable.
type LateUpdateFunc struct {
	ID registry.Handle
	Fn func(f clock.Frame) error
}

func (u *LateUpdateFunc) Handle() registry.Handle { return u.ID }

func (u *LateUpdateFunc) OnLateUpdate(f clock.Frame) error {
	if u.Fn == nil {
		return nil
	}
	return u.Fn(f)
}
