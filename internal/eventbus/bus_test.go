package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()
	b := New()
	faults, unsub := b.Subscribe(4, TypeFault)
	defer unsub()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: TypeShutdown})
	b.Publish(Event{Type: TypeFault, Data: 1})

	select {
	case e := <-faults:
		if e.Type != TypeFault || e.Data != 1 {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish should stamp time")
		}
	case <-time.After(time.Second):
		t.Fatal("fault event not delivered")
	}
	if len(faults) != 0 {
		t.Fatal("filtered subscriber received other types")
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TypeFrameStats})
	}
	if b.Dropped() != 9 {
		t.Fatalf("dropped = %d, want 9", b.Dropped())
	}
}

func TestUnsubscribeCloses(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: TypeFault})
}
