package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps Memory to record every Commit chunk size.
type countingStore struct {
	*Memory
	chunks []int
}

func (c *countingStore) Commit(ctx context.Context, ops []Op) error {
	c.chunks = append(c.chunks, len(ops))
	return c.Memory.Commit(ctx, ops)
}

func TestExecuteBatchChunksUnderTheCap(t *testing.T) {
	inner := &countingStore{Memory: NewMemory(500, 10)}
	exec := NewExecutor(inner, nil)
	ctx := context.Background()

	ops := make([]Op, 0, 1234)
	for i := 0; i < 1234; i++ {
		ops = append(ops, SetOp("docs", fmt.Sprintf("d%04d", i), map[string]interface{}{"n": i}))
	}

	committed, err := exec.ExecuteBatch(ctx, ops)
	require.NoError(t, err)

	assert.Equal(t, 1234, committed)
	assert.Equal(t, []int{500, 500, 234}, inner.chunks)
}

func TestExecuteBatchEmpty(t *testing.T) {
	exec := NewExecutor(NewMemory(0, 0), nil)

	committed, err := exec.ExecuteBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, committed)
}

func TestCascadeUpdate(t *testing.T) {
	m := NewMemory(0, 0)
	exec := NewExecutor(m, nil)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "sessions", "s1", map[string]interface{}{"classId": "c1", "room": "A"}))
	require.NoError(t, m.Set(ctx, "sessions", "s2", map[string]interface{}{"classId": "c1", "room": "A"}))
	require.NoError(t, m.Set(ctx, "sessions", "s3", map[string]interface{}{"classId": "c2", "room": "A"}))

	n, err := exec.CascadeUpdate(ctx, "sessions", "classId", "c1", map[string]interface{}{"room": "B"})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	raw, err := m.Get(ctx, "sessions", "s3")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"A"`)
}

func TestCascadeDelete(t *testing.T) {
	m := NewMemory(0, 0)
	exec := NewExecutor(m, nil)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "sessions", "s1", map[string]interface{}{"classId": "c1"}))
	require.NoError(t, m.Set(ctx, "sessions", "s2", map[string]interface{}{"classId": "c2"}))

	n, err := exec.CascadeDelete(ctx, "sessions", "classId", "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	_, err = m.Get(ctx, "sessions", "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "sessions", "s2")
	assert.NoError(t, err)
}

func TestQueryInChunksMergesResults(t *testing.T) {
	m := NewMemory(0, 2)
	exec := NewExecutor(m, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, m.Set(ctx, "sessions", id, map[string]interface{}{"date": fmt.Sprintf("2024-01-0%d", i+1)}))
	}

	values := []interface{}{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}
	docs, err := exec.QueryInChunks(ctx, "sessions", "date", values)
	require.NoError(t, err)

	assert.Len(t, docs, 5)
}
