package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests and the memory driver.
// Documents are stored as normalised JSON field maps; reads return copies so
// callers can never alias internal state.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	batchLimit  int
	inLimit     int
}

// NewMemory builds an empty in-memory store with the given limits.
func NewMemory(batchLimit, inLimit int) *Memory {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	if inLimit <= 0 {
		inLimit = 10
	}
	return &Memory{
		collections: make(map[string]map[string]map[string]interface{}),
		batchLimit:  batchLimit,
		inLimit:     inLimit,
	}
}

// BatchLimit reports the atomic batch cap.
func (m *Memory) BatchLimit() int { return m.batchLimit }

// InLimit reports the value-in-set query bound.
func (m *Memory) InLimit() int { return m.inLimit }

func (m *Memory) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return json.Marshal(doc)
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, toFields(doc))
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(collection, id, patch)
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) Query(ctx context.Context, collection, field string, value interface{}) ([]Doc, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Doc
	for id, doc := range m.collections[collection] {
		if fieldEquals(doc, field, want) {
			raw, err := json.Marshal(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, Doc{ID: id, Data: raw})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QueryIn(ctx context.Context, collection, field string, values []interface{}) ([]Doc, error) {
	if len(values) > m.inLimit {
		return nil, fmt.Errorf("store: in-query accepts at most %d values, got %d", m.inLimit, len(values))
	}
	wants := make([][]byte, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		wants = append(wants, raw)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Doc
	for id, doc := range m.collections[collection] {
		for _, want := range wants {
			if fieldEquals(doc, field, want) {
				raw, err := json.Marshal(doc)
				if err != nil {
					return nil, err
				}
				out = append(out, Doc{ID: id, Data: raw})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Commit(ctx context.Context, ops []Op) error {
	if len(ops) > m.batchLimit {
		return fmt.Errorf("store: batch accepts at most %d operations, got %d", m.batchLimit, len(ops))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			m.setLocked(op.Collection, op.ID, toFields(op.Payload))
		case OpUpdate:
			// Updates inside a batch tolerate missing targets so a cascade
			// can be re-applied after a partial earlier run.
			_ = m.updateLocked(op.Collection, op.ID, op.Payload)
		case OpDelete:
			delete(m.collections[op.Collection], op.ID)
		default:
			return fmt.Errorf("store: unknown op kind %q", op.Kind)
		}
	}
	return nil
}

func (m *Memory) setLocked(collection, id string, fields map[string]interface{}) {
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]interface{})
	}
	m.collections[collection][id] = normalise(fields)
}

func (m *Memory) updateLocked(collection, id string, patch map[string]interface{}) error {
	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range normalise(patch) {
		doc[k] = v
	}
	return nil
}

// normalise round-trips fields through JSON so stored values compare the
// same regardless of the Go types callers used.
func normalise(fields map[string]interface{}) map[string]interface{} {
	raw, err := json.Marshal(fields)
	if err != nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func fieldEquals(doc map[string]interface{}, field string, want []byte) bool {
	got, ok := doc[field]
	if !ok {
		return false
	}
	raw, err := json.Marshal(got)
	if err != nil {
		return false
	}
	return bytes.Equal(raw, want)
}
