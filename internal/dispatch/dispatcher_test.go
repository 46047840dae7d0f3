package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/center-ops-api/internal/store"
)

type recordedDispatch struct {
	collection string
	kind       string
	ok         bool
}

type captureRecorder struct {
	mu   sync.Mutex
	seen []recordedDispatch
}

func (r *captureRecorder) ObserveDispatch(collection, kind string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedDispatch{collection: collection, kind: kind, ok: ok})
}

func (r *captureRecorder) snapshot() []recordedDispatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedDispatch, len(r.seen))
	copy(out, r.seen)
	return out
}

func runDispatcher(t *testing.T, d *Dispatcher) (chan store.Event, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan store.Event, 16)
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()
	return events, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
	}
}

func waitEvent(t *testing.T, ch <-chan store.Event) store.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return store.Event{}
	}
}

func TestDispatcherRoutesByCollection(t *testing.T) {
	d := New(Config{Workers: 2, Buffer: 16}, nil, nil)

	classDeliveries := make(chan store.Event, 4)
	d.Register("class", "classes", HandlerFunc(func(ctx context.Context, event store.Event) error {
		classDeliveries <- event
		return nil
	}))

	events, stop := runDispatcher(t, d)
	defer stop()

	events <- store.Event{Collection: "classes", Kind: store.ChangeCreate, DocID: "c1"}
	events <- store.Event{Collection: "sessions", Kind: store.ChangeCreate, DocID: "s1"}

	got := waitEvent(t, classDeliveries)
	assert.Equal(t, "c1", got.DocID)

	select {
	case event := <-classDeliveries:
		t.Fatalf("unexpected delivery for collection %s", event.Collection)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherFiltersByKind(t *testing.T) {
	d := New(Config{Workers: 1, Buffer: 16}, nil, nil)

	deliveries := make(chan store.Event, 4)
	d.Register("session-completion", "sessions", HandlerFunc(func(ctx context.Context, event store.Event) error {
		deliveries <- event
		return nil
	}), store.ChangeUpdate)

	events, stop := runDispatcher(t, d)
	defer stop()

	events <- store.Event{Collection: "sessions", Kind: store.ChangeCreate, DocID: "s1"}
	events <- store.Event{Collection: "sessions", Kind: store.ChangeUpdate, DocID: "s2"}

	got := waitEvent(t, deliveries)
	assert.Equal(t, store.ChangeUpdate, got.Kind)
	assert.Equal(t, "s2", got.DocID)
}

func TestDispatcherFansOutToEveryRegistration(t *testing.T) {
	d := New(Config{Workers: 2, Buffer: 16}, nil, nil)

	first := make(chan store.Event, 4)
	second := make(chan store.Event, 4)
	d.Register("session", "sessions", HandlerFunc(func(ctx context.Context, event store.Event) error {
		first <- event
		return nil
	}))
	d.Register("session-completion", "sessions", HandlerFunc(func(ctx context.Context, event store.Event) error {
		second <- event
		return nil
	}))

	events, stop := runDispatcher(t, d)
	defer stop()

	events <- store.Event{Collection: "sessions", Kind: store.ChangeUpdate, DocID: "s1"}

	assert.Equal(t, "s1", waitEvent(t, first).DocID)
	assert.Equal(t, "s1", waitEvent(t, second).DocID)
}

func TestDispatcherDoesNotRetryFailedHandlers(t *testing.T) {
	recorder := &captureRecorder{}
	d := New(Config{Workers: 1, Buffer: 16}, recorder, nil)

	attempts := make(chan struct{}, 4)
	d.Register("holiday", "holidays", HandlerFunc(func(ctx context.Context, event store.Event) error {
		attempts <- struct{}{}
		return assert.AnError
	}))

	events, stop := runDispatcher(t, d)
	defer stop()

	events <- store.Event{Collection: "holidays", Kind: store.ChangeUpdate, DocID: "h1"}

	select {
	case <-attempts:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	select {
	case <-attempts:
		t.Fatal("failed delivery was retried")
	case <-time.After(100 * time.Millisecond):
	}

	seen := recorder.snapshot()
	require.Len(t, seen, 1)
	assert.Equal(t, recordedDispatch{collection: "holidays", kind: "update", ok: false}, seen[0])
}
