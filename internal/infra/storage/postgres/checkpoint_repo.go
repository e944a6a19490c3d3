package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

type checkpointRow struct {
	StreamID    string    `db:"stream_id"`
	LastLedger  int64     `db:"last_ledger"`
	LastEventID string    `db:"last_event_id"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r checkpointRow) toDomain() *domain.Checkpoint {
	return &domain.Checkpoint{
		StreamID:    r.StreamID,
		LastLedger:  uint32(r.LastLedger),
		LastEventID: r.LastEventID,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Get retrieves the checkpoint for a stream.
func (r *CheckpointRepo) Get(ctx context.Context, streamID string) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row, `
		SELECT stream_id, last_ledger, last_event_id, updated_at
		FROM checkpoints
		WHERE stream_id = $1`, streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert writes the checkpoint. The conflict clause drops writes below
// the stored ledger, so the position never regresses.
func (r *CheckpointRepo) Upsert(ctx context.Context, cp *domain.Checkpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (stream_id, last_ledger, last_event_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (stream_id) DO UPDATE SET
			last_ledger   = EXCLUDED.last_ledger,
			last_event_id = EXCLUDED.last_event_id,
			updated_at    = now()
		WHERE checkpoints.last_ledger <= EXCLUDED.last_ledger`,
		cp.StreamID, int64(cp.LastLedger), cp.LastEventID)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// All retrieves every checkpoint.
func (r *CheckpointRepo) All(ctx context.Context) ([]*domain.Checkpoint, error) {
	var rows []checkpointRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT stream_id, last_ledger, last_event_id, updated_at
		FROM checkpoints
		ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	cps := make([]*domain.Checkpoint, 0, len(rows))
	for _, row := range rows {
		cps = append(cps, row.toDomain())
	}
	return cps, nil
}
