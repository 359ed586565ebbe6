package worker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a Cycle.
type State int32

const (
	StateIdle State = iota
	StateDispatched
	StateRunning
	// StateFinished means Run returned but the cycle has not been joined.
	StateFinished
	StateJoined
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateJoined:
		return "joined"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Cycle is one in-flight unit of background work.
type Cycle struct {
	coord *Coordinator
	batch Batch

	state atomic.Int32
	done  chan struct{}

	joinOnce sync.Once
	result   Result

	dispatched time.Time
}

// Result summarizes a joined cycle.
type Result struct {
	Entries        int
	RunFaults      int
	CompleteFaults int
	// RunDuration is the time the worker spent in Run.
	RunDuration time.Duration
	// Wait is how long Join blocked.
	Wait time.Duration
}

func (cy *Cycle) run() {
	defer close(cy.done)
	cy.state.CompareAndSwap(int32(StateDispatched), int32(StateRunning))
	start := time.Now()
	_, faults := cy.coord.Run(cy.batch)
	cy.result.RunFaults = faults
	cy.result.RunDuration = time.Since(start)
	cy.state.CompareAndSwap(int32(StateRunning), int32(StateFinished))
}

func (cy *Cycle) State() State { return State(cy.state.Load()) }

// Done is closed once the worker has returned from Run.
func (cy *Cycle) Done() <-chan struct{} { return cy.done }

// Len returns the number of entries the cycle was dispatched with.
func (cy *Cycle) Len() int { return len(cy.batch) }

// Join blocks until Run has returned, then runs RunComplete on the calling
// goroutine. Only the first Join does any work; later calls return the same
// result. Join on an abandoned cycle returns immediately with ok false.
func (cy *Cycle) Join() (res Result, ok bool) { return cy.JoinIf(nil) }

// JoinIf is Join with a gate checked after the wait: when live reports
// false the cycle is abandoned instead and RunComplete never runs.
func (cy *Cycle) JoinIf(live func() bool) (res Result, ok bool) {
	if cy == nil {
		return Result{}, false
	}
	ran := false
	cy.joinOnce.Do(func() {
		if cy.State() == StateAbandoned {
			return
		}
		waitStart := time.Now()
		<-cy.done
		wait := time.Since(waitStart)
		if live != nil && !live() {
			cy.Abandon()
			return
		}
		if !cy.state.CompareAndSwap(int32(StateFinished), int32(StateJoined)) {
			return
		}
		_, faults := cy.coord.RunComplete(cy.batch)
		cy.result.Entries = cy.Len()
		cy.result.CompleteFaults = faults
		cy.result.Wait = wait
		ran = true
	})
	if ran || cy.State() == StateJoined {
		return cy.result, true
	}
	return Result{}, false
}

// Abandon gives up on the cycle without signalling the worker. The worker
// goroutine still runs Run to completion; RunComplete never runs.
func (cy *Cycle) Abandon() bool {
	if cy == nil {
		return false
	}
	for {
		s := cy.state.Load()
		if State(s) == StateJoined || State(s) == StateAbandoned {
			return false
		}
		if cy.state.CompareAndSwap(s, int32(StateAbandoned)) {
			return true
		}
	}
}

// DispatchedAt returns when the cycle was handed to the worker.
func (cy *Cycle) DispatchedAt() time.Time { return cy.dispatched }
