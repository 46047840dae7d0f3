// Package store defines the document-store capability contract the
// reconciliation engine runs against: point reads and writes by key,
// equality and bounded value-in-set queries over a single field, and an
// atomic multi-document batch capped at a configurable operation count.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("store: document not found")

// Doc is a document returned by a query.
type Doc struct {
	ID   string
	Data json.RawMessage
}

// OpKind enumerates batch operation kinds.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is a single operation in a batch. Payload is the full document for a
// set and a top-level field patch for an update.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Payload    map[string]interface{}
}

// SetOp builds a set operation from any JSON-marshalable document.
func SetOp(collection, id string, doc interface{}) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Payload: toFields(doc)}
}

// UpdateOp builds a field-patch operation.
func UpdateOp(collection, id string, patch map[string]interface{}) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Payload: patch}
}

// DeleteOp builds a delete operation.
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the document-store contract. Commit is atomic for up to
// BatchLimit operations; QueryIn accepts at most InLimit values.
type Store interface {
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Set(ctx context.Context, collection, id string, doc interface{}) error
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error

	Query(ctx context.Context, collection, field string, value interface{}) ([]Doc, error)
	QueryIn(ctx context.Context, collection, field string, values []interface{}) ([]Doc, error)

	Commit(ctx context.Context, ops []Op) error

	BatchLimit() int
	InLimit() int
}

// Decode unmarshals a document into a typed model.
func Decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

// toFields normalises any document into its JSON field map.
func toFields(doc interface{}) map[string]interface{} {
	if m, ok := doc.(map[string]interface{}); ok {
		return m
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return map[string]interface{}{}
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]interface{}{}
	}
	return fields
}
