package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/eventbus"
	"framesched/internal/phase"
	"framesched/internal/registry"
	logx "framesched/pkg/logx"
)

func fault(id registry.Handle, err error) *phase.Fault {
	return &phase.Fault{Phase: phase.LateUpdate, ID: id, Err: err, At: time.Now()}
}

func TestRecorderCountsAndHistory(t *testing.T) {
	arena := registry.NewArena()
	a, b := arena.Alloc(), arena.Alloc()
	r := NewRecorder(3, logx.Nop())

	for i := 0; i < 4; i++ {
		r.Record(fault(a, errors.New("a")))
	}
	r.Record(&phase.Fault{Phase: phase.SeparateThreadUpdate, ID: b, Panic: "oops", At: time.Now()})

	assert.Equal(t, uint64(4), r.Count(a))
	assert.Equal(t, uint64(1), r.Count(b))
	assert.Equal(t, uint64(5), r.Total())

	recent := r.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "oops", recent[2].Panic)
	assert.Equal(t, "separate_thread_update", recent[2].Phase)
	assert.Equal(t, b.String(), recent[2].Participant)

	top := r.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, a, top[0].Participant)

	r.Forget(a)
	assert.Zero(t, r.Count(a))
}

func TestRecorderDrain(t *testing.T) {
	arena := registry.NewArena()
	id := arena.Alloc()
	r := NewRecorder(2, logx.Nop())

	for i := 0; i < 10; i++ {
		r.Record(fault(id, errors.New("x")))
	}
	// pending keeps 4x history.
	got := r.Drain()
	assert.Len(t, got, 8)
	assert.Equal(t, uint64(2), r.Dropped())
	assert.Empty(t, r.Drain())

	r.Requeue(got[:3])
	assert.Len(t, r.Drain(), 3)
}

func TestRecorderResize(t *testing.T) {
	arena := registry.NewArena()
	id := arena.Alloc()
	r := NewRecorder(5, logx.Nop())
	for i := 0; i < 5; i++ {
		r.Record(fault(id, errors.New("x")))
	}
	r.Resize(2)
	assert.Len(t, r.Recent(), 2)
}

func TestRecorderRunConsumesBus(t *testing.T) {
	bus := eventbus.New()
	r := NewRecorder(8, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, bus)
	}()

	id := registry.NewArena().Alloc()
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.TypeFault, Data: fault(id, errors.New("x"))})
		return r.Total() > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
