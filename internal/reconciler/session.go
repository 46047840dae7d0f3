package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
)

// SessionReconciler keeps the owning class's completion progress in step
// with its sessions and removes homework tied to deleted sessions.
type SessionReconciler struct {
	store  store.Store
	exec   *store.Executor
	logger *zap.Logger
}

// NewSessionReconciler builds the reconciler.
func NewSessionReconciler(s store.Store, exec *store.Executor, logger *zap.Logger) *SessionReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReconciler{store: s, exec: exec, logger: logger}
}

// Handle reacts to one committed session change.
func (r *SessionReconciler) Handle(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Session](event.Before, event.After)
	if err != nil {
		return err
	}

	var classID string
	switch event.Kind {
	case store.ChangeCreate:
		classID = next.ClassID
	case store.ChangeDelete:
		classID = prev.ClassID
		if _, err := r.exec.CascadeDelete(ctx, models.CollectionHomework, "sessionId", event.DocID); err != nil {
			return err
		}
	case store.ChangeUpdate:
		if prev.Status == next.Status {
			return nil
		}
		classID = next.ClassID
	}

	return r.recomputeProgress(ctx, classID)
}

// recomputeProgress re-queries every session of the class and writes the
// held/total fraction onto the class document.
func (r *SessionReconciler) recomputeProgress(ctx context.Context, classID string) error {
	if classID == "" {
		return nil
	}
	if _, err := r.store.Get(ctx, models.CollectionClasses, classID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("progress recompute skipped: class missing", zap.String("class_id", classID))
			return nil
		}
		return err
	}

	docs, err := r.store.Query(ctx, models.CollectionSessions, "classId", classID)
	if err != nil {
		return err
	}
	held := 0
	for _, doc := range docs {
		var session models.Session
		if err := store.Decode(doc.Data, &session); err != nil {
			return err
		}
		if session.Status == models.SessionStatusHeld {
			held++
		}
	}

	progress := fmt.Sprintf("%d/%d", held, len(docs))
	return r.store.Update(ctx, models.CollectionClasses, classID,
		map[string]interface{}{"progress": progress})
}
