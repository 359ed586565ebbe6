package diagnostics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/puzpuzpuz/xsync/v3"

	"framesched/internal/eventbus"
	"framesched/internal/phase"
	"framesched/internal/registry"
	"framesched/internal/storage"
	logx "framesched/pkg/logx"
)

// Recorder keeps per-participant fault counts, a bounded history of recent
// faults, and a queue of records waiting to be flushed to storage.
type Recorder struct {
	log logx.Logger

	counts *xsync.MapOf[registry.Handle, *atomic.Uint64]
	total  atomic.Uint64

	mu      sync.Mutex
	history int
	recent  *queue.Queue
	pending *queue.Queue
	dropped atomic.Uint64
}

// ParticipantFaults is one row of Top.
type ParticipantFaults struct {
	Participant registry.Handle
	Faults      uint64
}

func NewRecorder(history int, log logx.Logger) *Recorder {
	if history <= 0 {
		history = 256
	}
	return &Recorder{
		log:     log.With(logx.String("comp", "diagnostics")),
		counts:  xsync.NewMapOf[registry.Handle, *atomic.Uint64](),
		history: history,
		recent:  queue.New(),
		pending: queue.New(),
	}
}

// Run consumes fault events from bus until ctx ends.
func (r *Recorder) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256, eventbus.TypeFault)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if f, ok := ev.Data.(*phase.Fault); ok {
				r.Record(f)
			}
		}
	}
}

// Record adds one fault.
func (r *Recorder) Record(f *phase.Fault) {
	if f == nil {
		return
	}
	c, _ := r.counts.LoadOrCompute(f.ID, func() *atomic.Uint64 { return new(atomic.Uint64) })
	c.Add(1)
	r.total.Add(1)

	rec := toRecord(f)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent.Add(rec)
	for r.recent.Length() > r.history {
		r.recent.Remove()
	}
	// pending is bounded too so a dead store cannot grow memory forever.
	r.pending.Add(rec)
	for r.pending.Length() > r.history*4 {
		r.pending.Remove()
		r.dropped.Add(1)
	}
}

func toRecord(f *phase.Fault) storage.FaultRecord {
	rec := storage.FaultRecord{
		At:          f.At,
		Phase:       f.Phase.String(),
		Participant: f.ID.String(),
	}
	if f.Panic != nil {
		rec.Panic = fmt.Sprint(f.Panic)
	} else if f.Err != nil {
		rec.Error = f.Err.Error()
	}
	return rec
}

// Drain removes and returns every record not yet flushed, oldest first.
func (r *Recorder) Drain() []storage.FaultRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.pending.Length()
	if n == 0 {
		return nil
	}
	out := make([]storage.FaultRecord, 0, n)
	for r.pending.Length() > 0 {
		out = append(out, r.pending.Remove().(storage.FaultRecord))
	}
	return out
}

// Requeue puts records back after a failed flush. They go behind anything
// recorded since, so order across a failure is best-effort.
func (r *Recorder) Requeue(recs []storage.FaultRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.pending.Add(rec)
	}
	for r.pending.Length() > r.history*4 {
		r.pending.Remove()
		r.dropped.Add(1)
	}
}

// Recent returns the history, oldest first.
func (r *Recorder) Recent() []storage.FaultRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.FaultRecord, r.recent.Length())
	for i := range out {
		out[i] = r.recent.Get(i).(storage.FaultRecord)
	}
	return out
}

// Resize changes the history bound; excess oldest entries are dropped.
func (r *Recorder) Resize(history int) {
	if history <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = history
	for r.recent.Length() > r.history {
		r.recent.Remove()
	}
}

func (r *Recorder) Count(id registry.Handle) uint64 {
	if c, ok := r.counts.Load(id); ok {
		return c.Load()
	}
	return 0
}

func (r *Recorder) Total() uint64 { return r.total.Load() }

// Dropped counts records evicted before they could be flushed.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Forget drops the count for a participant that went away.
func (r *Recorder) Forget(id registry.Handle) { r.counts.Delete(id) }

// Top returns the n participants with the most faults.
func (r *Recorder) Top(n int) []ParticipantFaults {
	var out []ParticipantFaults
	r.counts.Range(func(id registry.Handle, c *atomic.Uint64) bool {
		out = append(out, ParticipantFaults{Participant: id, Faults: c.Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Faults != out[j].Faults {
			return out[i].Faults > out[j].Faults
		}
		return out[i].Participant.String() < out[j].Participant.String()
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
