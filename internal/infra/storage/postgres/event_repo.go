package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/ingest/metrics"
)

// EventRepo implements storage.EventRepository using PostgreSQL. It is
// the flush target of the batch processor: an append-only journal of
// every classified event.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

type eventRow struct {
	EventID  string    `db:"event_id"`
	Ledger   int64     `db:"ledger"`
	Contract string    `db:"contract"`
	Kind     string    `db:"kind"`
	Payload  []byte    `db:"payload"`
	ClosedAt time.Time `db:"closed_at"`
}

// SaveBatch appends events in one multi-row insert. Rows whose event id
// already exists are skipped.
func (r *EventRepo) SaveBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]eventRow, 0, len(events))
	for _, e := range events {
		payload := e.Payload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		rows = append(rows, eventRow{
			EventID:  e.ID,
			Ledger:   int64(e.Ledger),
			Contract: e.Contract,
			Kind:     string(e.Kind),
			Payload:  payload,
			ClosedAt: e.ClosedAt,
		})
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO contract_events (event_id, ledger, contract, kind, payload, closed_at)
		VALUES (:event_id, :ledger, :contract, :kind, :payload, :closed_at)
		ON CONFLICT (event_id) DO NOTHING`, rows)
	if err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}

	metrics.DBBatchSize.WithLabelValues("save_events").Observe(float64(len(events)))
	return nil
}

// CountByContract returns the number of journaled events for a contract.
func (r *EventRepo) CountByContract(ctx context.Context, contract string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM contract_events WHERE contract = $1`, contract)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// DeleteBefore removes journal rows closed before cutoff.
func (r *EventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contract_events WHERE closed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return n, nil
}
