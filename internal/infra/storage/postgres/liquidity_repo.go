package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// LiquidityRepo implements storage.LiquidityRepository using PostgreSQL.
type LiquidityRepo struct {
	db *DB
}

// NewLiquidityRepo creates a new PostgreSQL liquidity repository.
func NewLiquidityRepo(db *DB) *LiquidityRepo {
	return &LiquidityRepo{db: db}
}

// Insert stores a liquidity change keyed by event id. Returns false when
// the event id was already present.
func (r *LiquidityRepo) Insert(ctx context.Context, lc *domain.LiquidityChange) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO liquidity_events (event_id, pool, provider, direction, amount0, amount1, liquidity, ledger, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		lc.EventID, lc.Pool, lc.Provider, string(lc.Direction),
		lc.Amount0, lc.Amount1, lc.Liquidity, int64(lc.Ledger), lc.ClosedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert liquidity event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
