// ABOUTME: Event handler that writes every operation event to the ledger
// ABOUTME: Persists first, then forwards to the next handler

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/pillarclient/internal/event"
)

const saveTimeout = 5 * time.Second

// EventSaver is the part of the store a Recorder needs.
type EventSaver interface {
	SaveEvent(ctx context.Context, e event.OperationEvent) error
}

// Recorder is an event.Handler that saves events. Save failures are
// logged; they never affect the conversation.
type Recorder struct {
	store  EventSaver
	next   event.Handler
	logger *slog.Logger
}

// NewRecorder creates a recorder that forwards to next, which may be nil.
func NewRecorder(store EventSaver, next event.Handler, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, next: next, logger: logger.With("component", "recorder")}
}

// HandleEvent saves e and forwards it.
func (r *Recorder) HandleEvent(e event.OperationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.SaveEvent(ctx, e); err != nil {
		r.logger.Error("failed to record event",
			"conversation_id", e.ConversationID,
			"type", e.Type,
			"error", err,
		)
	}
	if r.next != nil {
		r.next.HandleEvent(e)
	}
}
