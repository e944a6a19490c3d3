package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// SwapRepo implements storage.SwapRepository using PostgreSQL.
type SwapRepo struct {
	db *DB
}

// NewSwapRepo creates a new PostgreSQL swap repository.
func NewSwapRepo(db *DB) *SwapRepo {
	return &SwapRepo{db: db}
}

// Insert stores a swap keyed by event id. Returns false when the event
// id was already present.
func (r *SwapRepo) Insert(ctx context.Context, swap *domain.Swap) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO swaps (event_id, pool, sender, token_in, token_out, amount_in, amount_out, ledger, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		swap.EventID, swap.Pool, swap.Sender, swap.TokenIn, swap.TokenOut,
		swap.AmountIn, swap.AmountOut, int64(swap.Ledger), swap.ClosedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert swap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
