package worker

import (
	"sync"
	"time"

	"framesched/internal/phase"
	"framesched/internal/registry"
)

// Updatable is a participant with work split across the frame goroutine and
// the worker goroutine.
//
// OnMainThreadUpdate runs on the frame goroutine right before the worker
// starts and is the place to hand data to the worker. OnSeparateThreadUpdate
// runs on the worker and must only touch that handed-off data.
// OnSeparateThreadComplete runs on the frame goroutine after the worker was
// joined.
type Updatable interface {
	Handle() registry.Handle
	OnMainThreadUpdate() error
	OnSeparateThreadUpdate() error
	OnSeparateThreadComplete() error
}

// Funcs adapts closures to Updatable. Nil hooks are skipped.
type Funcs struct {
	ID         registry.Handle
	MainThread func() error
	Separate   func() error
	Complete   func() error
}

func (f *Funcs) Handle() registry.Handle { return f.ID }

func (f *Funcs) OnMainThreadUpdate() error     { return call(f.MainThread) }
func (f *Funcs) OnSeparateThreadUpdate() error { return call(f.Separate) }
func (f *Funcs) OnSeparateThreadComplete() error {
	return call(f.Complete)
}

func call(fn func() error) error {
	if fn == nil {
		return nil
	}
	return fn()
}

// Batch is the set of entries a cycle works on.
type Batch = phase.Batch[Updatable]

// Reporter receives faults raised by background hooks.
type Reporter func(*phase.Fault)

// Coordinator owns the background registry and runs the three-step handoff.
//
// Registration may come from any goroutine, so the registry is guarded by mu.
// The worker never reads the registry: Dispatch copies it into the cycle's
// Batch under mu and the worker walks that copy.
type Coordinator struct {
	mu  sync.Mutex
	reg *registry.Registry[Updatable]

	report Reporter
}

func NewCoordinator(report Reporter) *Coordinator {
	return &Coordinator{reg: registry.New[Updatable](8), report: report}
}

// AddUpdatable registers u. It reports false if u's identity is already present.
func (c *Coordinator) AddUpdatable(u Updatable) bool {
	if u == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.AddUnique(registry.Entry[Updatable]{ID: u.Handle(), Value: u})
}

// RemoveUpdatable deregisters id.
func (c *Coordinator) RemoveUpdatable(id registry.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.RemoveSwapBack(id)
}

func (c *Coordinator) Contains(id registry.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Contains(id)
}

func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Len()
}

// ShouldRun reports whether there is background work this cycle.
func (c *Coordinator) ShouldRun() bool { return c.Len() > 0 }

// Snapshot copies the registry.
func (c *Coordinator) Snapshot() Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Batch(c.reg.Snapshot())
}

// RunBeforeUpdate calls OnMainThreadUpdate on every registered entry, on the
// calling goroutine. mu is only held while reading a position so hooks may
// register or deregister.
func (c *Coordinator) RunBeforeUpdate() (visited, faults int) {
	return phase.Iterate[Updatable](phase.MainThreadUpdate, lockedSource{c}, Updatable.OnMainThreadUpdate, c.report)
}

// Run calls OnSeparateThreadUpdate on every entry of b.
func (c *Coordinator) Run(b Batch) (visited, faults int) {
	return phase.Iterate[Updatable](phase.SeparateThreadUpdate, b, Updatable.OnSeparateThreadUpdate, c.report)
}

// RunComplete calls OnSeparateThreadComplete on every entry of b that is still
// registered.
func (c *Coordinator) RunComplete(b Batch) (visited, faults int) {
	live := make(Batch, 0, len(b))
	c.mu.Lock()
	for _, e := range b {
		if c.reg.Contains(e.ID) {
			live = append(live, e)
		}
	}
	c.mu.Unlock()
	return phase.Iterate[Updatable](phase.SeparateThreadComplete, live, Updatable.OnSeparateThreadComplete, c.report)
}

// Dispatch runs RunBeforeUpdate, then starts Run on a new worker goroutine.
// It returns nil when there is nothing registered.
func (c *Coordinator) Dispatch() *Cycle {
	if !c.ShouldRun() {
		return nil
	}
	c.RunBeforeUpdate()
	b := c.Snapshot()
	if len(b) == 0 {
		// Every participant deregistered itself in the pre-dispatch hook.
		return nil
	}

	cy := &Cycle{coord: c, batch: b, done: make(chan struct{}), dispatched: time.Now()}
	cy.state.Store(int32(StateDispatched))
	go cy.run()
	return cy
}

type lockedSource struct{ c *Coordinator }

func (s lockedSource) Len() int { return s.c.Len() }

func (s lockedSource) At(i int) (registry.Entry[Updatable], bool) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.reg.At(i)
}
