package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// ChangeKind enumerates document change kinds.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Event describes one committed document mutation with its previous and new
// field values. Before is nil on create, After is nil on delete.
type Event struct {
	ID         string
	Collection string
	Kind       ChangeKind
	DocID      string
	Before     json.RawMessage
	After      json.RawMessage
}

// EventRecorder observes published change events.
type EventRecorder interface {
	ObserveEvent(collection, kind string)
}

// Bus decorates a Store so that every committed mutation is published
// exactly once as a change event. It is the in-process stand-in for a
// hosted store's trigger subscription: swapping backends means replacing
// this decorator, not the reconcilers.
type Bus struct {
	inner    Store
	events   chan Event
	recorder EventRecorder
}

// NewBus wraps inner with an event channel of the given buffer size.
func NewBus(inner Store, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{inner: inner, events: make(chan Event, buffer)}
}

// SetRecorder attaches an event observer. Call before any writes happen.
func (b *Bus) SetRecorder(r EventRecorder) { b.recorder = r }

// Events exposes the committed-change stream.
func (b *Bus) Events() <-chan Event { return b.events }

// Close closes the event stream. Call only after all writers stopped.
func (b *Bus) Close() { close(b.events) }

func (b *Bus) BatchLimit() int { return b.inner.BatchLimit() }
func (b *Bus) InLimit() int    { return b.inner.InLimit() }

func (b *Bus) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	return b.inner.Get(ctx, collection, id)
}

func (b *Bus) Query(ctx context.Context, collection, field string, value interface{}) ([]Doc, error) {
	return b.inner.Query(ctx, collection, field, value)
}

func (b *Bus) QueryIn(ctx context.Context, collection, field string, values []interface{}) ([]Doc, error) {
	return b.inner.QueryIn(ctx, collection, field, values)
}

func (b *Bus) Set(ctx context.Context, collection, id string, doc interface{}) error {
	before, _ := b.inner.Get(ctx, collection, id)
	if err := b.inner.Set(ctx, collection, id, doc); err != nil {
		return err
	}
	after, _ := b.inner.Get(ctx, collection, id)
	kind := ChangeUpdate
	if before == nil {
		kind = ChangeCreate
	}
	b.publish(Event{Collection: collection, Kind: kind, DocID: id, Before: before, After: after})
	return nil
}

func (b *Bus) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	before, err := b.inner.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := b.inner.Update(ctx, collection, id, patch); err != nil {
		return err
	}
	after, _ := b.inner.Get(ctx, collection, id)
	b.publish(Event{Collection: collection, Kind: ChangeUpdate, DocID: id, Before: before, After: after})
	return nil
}

func (b *Bus) Delete(ctx context.Context, collection, id string) error {
	before, err := b.inner.Get(ctx, collection, id)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if err := b.inner.Delete(ctx, collection, id); err != nil {
		return err
	}
	b.publish(Event{Collection: collection, Kind: ChangeDelete, DocID: id, Before: before})
	return nil
}

// Commit captures before-images, commits the batch atomically, then emits
// one event per operation. Events are published only after the whole batch
// lands, matching once-per-committed-mutation delivery.
func (b *Bus) Commit(ctx context.Context, ops []Op) error {
	befores := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		befores[i], _ = b.inner.Get(ctx, op.Collection, op.ID)
	}
	if err := b.inner.Commit(ctx, ops); err != nil {
		return err
	}
	for i, op := range ops {
		event := Event{Collection: op.Collection, DocID: op.ID, Before: befores[i]}
		switch op.Kind {
		case OpDelete:
			if befores[i] == nil {
				continue
			}
			event.Kind = ChangeDelete
		case OpUpdate:
			if befores[i] == nil {
				continue
			}
			event.Kind = ChangeUpdate
			event.After, _ = b.inner.Get(ctx, op.Collection, op.ID)
		default:
			event.Kind = ChangeUpdate
			if befores[i] == nil {
				event.Kind = ChangeCreate
			}
			event.After, _ = b.inner.Get(ctx, op.Collection, op.ID)
		}
		b.publish(event)
	}
	return nil
}

// publish never blocks the writing reconciler: when the buffer is full the
// event is handed to a goroutine, trading strict ordering for liveness.
// Reconcilers make no cross-collection ordering assumptions.
func (b *Bus) publish(e Event) {
	e.ID = uuid.NewString()
	if b.recorder != nil {
		b.recorder.ObserveEvent(e.Collection, string(e.Kind))
	}
	select {
	case b.events <- e:
	default:
		go func() { b.events <- e }()
	}
}
