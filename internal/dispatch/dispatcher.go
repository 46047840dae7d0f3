// Package dispatch routes committed document changes to the reconcilers
// registered for their collection. Each delivery runs as an independent,
// short-lived task on a worker queue; handlers share no in-process state
// and failures are logged, never retried by the engine.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/jobs"
)

// Handler reacts to one committed document change.
type Handler interface {
	Handle(ctx context.Context, event store.Event) error
}

// HandlerFunc allows using plain functions as handlers.
type HandlerFunc func(ctx context.Context, event store.Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event store.Event) error {
	return f(ctx, event)
}

// Recorder observes dispatch outcomes, typically for metrics.
type Recorder interface {
	ObserveDispatch(collection string, kind string, ok bool)
}

type registration struct {
	name    string
	kinds   map[store.ChangeKind]bool
	handler Handler
}

// Dispatcher fans committed change events out to registered handlers.
type Dispatcher struct {
	handlers map[string][]registration
	queue    *jobs.Queue
	recorder Recorder
	logger   *zap.Logger
}

type delivery struct {
	event store.Event
	reg   registration
}

// Config sizes the dispatch worker pool.
type Config struct {
	Workers int
	Buffer  int
}

// New builds a dispatcher with its own worker queue.
func New(cfg Config, recorder Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		handlers: make(map[string][]registration),
		recorder: recorder,
		logger:   logger,
	}
	d.queue = jobs.NewQueue("dispatch", d.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.Buffer,
		Logger:     logger,
	})
	return d
}

// Register binds a handler to a collection for the given change kinds.
// Registering with no kinds subscribes to all of them.
func (d *Dispatcher) Register(name, collection string, handler Handler, kinds ...store.ChangeKind) {
	kindSet := make(map[store.ChangeKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	d.handlers[collection] = append(d.handlers[collection], registration{
		name:    name,
		kinds:   kindSet,
		handler: handler,
	})
}

// Run consumes events until the channel closes or ctx is cancelled. It
// starts the worker queue and blocks, so callers run it in a goroutine.
func (d *Dispatcher) Run(ctx context.Context, events <-chan store.Event) {
	d.queue.Start(ctx)
	defer d.queue.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.deliver(event)
		}
	}
}

func (d *Dispatcher) deliver(event store.Event) {
	for _, reg := range d.handlers[event.Collection] {
		if len(reg.kinds) > 0 && !reg.kinds[event.Kind] {
			continue
		}
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    fmt.Sprintf("%s/%s", reg.name, event.Kind),
			Payload: delivery{event: event, reg: reg},
		}
		if err := d.queue.Enqueue(job); err != nil {
			d.logger.Error("failed to enqueue reconciler delivery",
				zap.String("handler", reg.name),
				zap.String("collection", event.Collection),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job jobs.Job) error {
	del, ok := job.Payload.(delivery)
	if !ok {
		return fmt.Errorf("dispatch: unexpected payload type %T", job.Payload)
	}
	err := del.reg.handler.Handle(ctx, del.event)
	if d.recorder != nil {
		d.recorder.ObserveDispatch(del.event.Collection, string(del.event.Kind), err == nil)
	}
	if err != nil {
		d.logger.Error("reconciler failed",
			zap.String("handler", del.reg.name),
			zap.String("collection", del.event.Collection),
			zap.String("kind", string(del.event.Kind)),
			zap.String("doc_id", del.event.DocID),
			zap.Error(err))
	}
	// Errors are not returned to the queue: the engine performs no retries.
	return nil
}
