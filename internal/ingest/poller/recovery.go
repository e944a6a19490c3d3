package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/ingest/handlers"
)

// FailedEventStore persists dead-lettered events for manual inspection.
type FailedEventStore interface {
	Add(ctx context.Context, fe *domain.FailedEvent) error
}

// Recorder writes handler failures to the dead letter queue. Nothing
// replays them automatically; the failed subcommand is the way back in.
type Recorder struct {
	store  FailedEventStore
	stream string
}

func NewRecorder(store FailedEventStore, stream string) *Recorder {
	return &Recorder{store: store, stream: stream}
}

// Record captures one failed event. Storage errors are logged and
// swallowed; losing a dead letter entry must not take the stream down.
func (r *Recorder) Record(ctx context.Context, evt domain.Event, cause error) {
	fe := &domain.FailedEvent{
		ID:          uuid.New().String(),
		EventID:     evt.ID,
		Contract:    evt.Contract,
		Kind:        evt.Kind,
		Ledger:      evt.Ledger,
		Payload:     evt.Payload,
		ClosedAt:    evt.ClosedAt.Unix(),
		FailureType: ClassifyFailure(cause),
		Error:       cause.Error(),
		RetryCount:  0,
		Status:      domain.FailedEventStatusPending,
		CreatedAt:   time.Now().Unix(),
	}

	if err := r.store.Add(ctx, fe); err != nil {
		slog.Error("Failed to record dead letter event",
			"stream", r.stream,
			"event_id", evt.ID,
			"error", err,
		)
		return
	}

	slog.Warn("Event moved to dead letter queue",
		"stream", r.stream,
		"event_id", evt.ID,
		"kind", evt.Kind,
		"failure_type", fe.FailureType,
	)
}

// ClassifyFailure buckets a handler error for the dead letter entry.
func ClassifyFailure(cause error) domain.FailureType {
	if errors.Is(cause, handlers.ErrMalformedPayload) {
		return domain.FailureTypeParsing
	}
	return domain.FailureTypeHandler
}
