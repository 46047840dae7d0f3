package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusSetPublishesCreateThenUpdate(t *testing.T) {
	bus := NewBus(NewMemory(0, 0), 8)
	ctx := context.Background()

	require.NoError(t, bus.Set(ctx, "students", "s1", map[string]interface{}{"status": "trial"}))
	created := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeCreate, created.Kind)
	assert.Equal(t, "students", created.Collection)
	assert.Equal(t, "s1", created.DocID)
	assert.Nil(t, created.Before)
	assert.Contains(t, string(created.After), "trial")
	assert.NotEmpty(t, created.ID)

	require.NoError(t, bus.Set(ctx, "students", "s1", map[string]interface{}{"status": "active"}))
	updated := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeUpdate, updated.Kind)
	assert.Contains(t, string(updated.Before), "trial")
	assert.Contains(t, string(updated.After), "active")
}

func TestBusUpdateCarriesBothImages(t *testing.T) {
	bus := NewBus(NewMemory(0, 0), 8)
	ctx := context.Background()
	require.NoError(t, bus.Set(ctx, "students", "s1", map[string]interface{}{"status": "active", "fullName": "An"}))
	nextEvent(t, bus.Events())

	require.NoError(t, bus.Update(ctx, "students", "s1", map[string]interface{}{"status": "withdrawn"}))

	e := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeUpdate, e.Kind)
	assert.Contains(t, string(e.Before), "active")
	assert.Contains(t, string(e.After), "withdrawn")
	assert.Contains(t, string(e.After), "An")
}

func TestBusDeletePublishesBeforeImage(t *testing.T) {
	bus := NewBus(NewMemory(0, 0), 8)
	ctx := context.Background()
	require.NoError(t, bus.Set(ctx, "students", "s1", map[string]interface{}{"status": "active"}))
	nextEvent(t, bus.Events())

	require.NoError(t, bus.Delete(ctx, "students", "s1"))

	e := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeDelete, e.Kind)
	assert.Contains(t, string(e.Before), "active")
	assert.Nil(t, e.After)
}

func TestBusDeleteMissingIsSilent(t *testing.T) {
	bus := NewBus(NewMemory(0, 0), 8)

	require.NoError(t, bus.Delete(context.Background(), "students", "ghost"))

	select {
	case e := <-bus.Events():
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusCommitEmitsOneEventPerOp(t *testing.T) {
	bus := NewBus(NewMemory(0, 0), 8)
	ctx := context.Background()
	require.NoError(t, bus.Set(ctx, "students", "old", map[string]interface{}{"status": "active"}))
	nextEvent(t, bus.Events())

	require.NoError(t, bus.Commit(ctx, []Op{
		SetOp("students", "new", map[string]interface{}{"status": "trial"}),
		UpdateOp("students", "old", map[string]interface{}{"status": "reserved"}),
		DeleteOp("students", "missing"),
	}))

	first := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeCreate, first.Kind)
	assert.Equal(t, "new", first.DocID)

	second := nextEvent(t, bus.Events())
	assert.Equal(t, ChangeUpdate, second.Kind)
	assert.Equal(t, "old", second.DocID)

	// The delete targeted a document that never existed, so exactly two
	// events come out of a three-op batch.
	select {
	case e := <-bus.Events():
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusFailedCommitPublishesNothing(t *testing.T) {
	bus := NewBus(NewMemory(1, 0), 8)

	err := bus.Commit(context.Background(), []Op{
		SetOp("x", "1", map[string]interface{}{}),
		SetOp("x", "2", map[string]interface{}{}),
	})

	assert.Error(t, err)
	select {
	case e := <-bus.Events():
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
