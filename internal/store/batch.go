package store

import (
	"context"

	"go.uber.org/zap"
)

// Executor commits bulk writes in consecutive chunks no larger than the
// store's batch cap and exposes the cascade primitives built on top of it.
//
// A failed chunk does not roll back the chunks committed before it, so
// every cascade routed through the executor must be safe to re-run.
type Executor struct {
	store    Store
	logger   *zap.Logger
	recorder BatchRecorder
}

// BatchRecorder observes committed chunk sizes.
type BatchRecorder interface {
	ObserveBatch(ops int)
}

// NewExecutor builds an executor over the given store.
func NewExecutor(s Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: s, logger: logger}
}

// SetRecorder attaches a chunk-size observer.
func (e *Executor) SetRecorder(r BatchRecorder) { e.recorder = r }

// Store exposes the underlying store for point reads.
func (e *Executor) Store() Store { return e.store }

// ExecuteBatch commits ops in sequential chunks and returns the number of
// operations committed. On chunk failure the count covers the chunks that
// landed; the error propagates to the caller unretried.
func (e *Executor) ExecuteBatch(ctx context.Context, ops []Op) (int, error) {
	limit := e.store.BatchLimit()
	committed := 0
	for start := 0; start < len(ops); start += limit {
		end := start + limit
		if end > len(ops) {
			end = len(ops)
		}
		if err := e.store.Commit(ctx, ops[start:end]); err != nil {
			e.logger.Error("batch chunk failed",
				zap.Int("committed", committed),
				zap.Int("chunk_size", end-start),
				zap.Error(err))
			return committed, err
		}
		committed += end - start
		if e.recorder != nil {
			e.recorder.ObserveBatch(end - start)
		}
	}
	return committed, nil
}

// CascadeUpdate applies patch to every document whose field equals value.
func (e *Executor) CascadeUpdate(ctx context.Context, collection, field string, value interface{}, patch map[string]interface{}) (int, error) {
	docs, err := e.store.Query(ctx, collection, field, value)
	if err != nil {
		return 0, err
	}
	ops := make([]Op, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, UpdateOp(collection, doc.ID, patch))
	}
	return e.ExecuteBatch(ctx, ops)
}

// CascadeDelete removes every document whose field equals value.
func (e *Executor) CascadeDelete(ctx context.Context, collection, field string, value interface{}) (int, error) {
	docs, err := e.store.Query(ctx, collection, field, value)
	if err != nil {
		return 0, err
	}
	ops := make([]Op, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, DeleteOp(collection, doc.ID))
	}
	return e.ExecuteBatch(ctx, ops)
}

// QueryInChunks runs a value-in-set query over an unbounded value list by
// splitting it into store-sized chunks and merging the results. Written
// once here, used by the holiday and homework-cleanup paths.
func (e *Executor) QueryInChunks(ctx context.Context, collection, field string, values []interface{}) ([]Doc, error) {
	limit := e.store.InLimit()
	var out []Doc
	for start := 0; start < len(values); start += limit {
		end := start + limit
		if end > len(values) {
			end = len(values)
		}
		docs, err := e.store.QueryIn(ctx, collection, field, values[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}
