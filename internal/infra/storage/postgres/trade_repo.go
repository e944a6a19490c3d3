package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// TradeRepo implements storage.TradeRepository using PostgreSQL.
type TradeRepo struct {
	db *DB
}

// NewTradeRepo creates a new PostgreSQL trade repository.
func NewTradeRepo(db *DB) *TradeRepo {
	return &TradeRepo{db: db}
}

// Insert stores a trade keyed by event id. Returns false when the event
// id was already present.
func (r *TradeRepo) Insert(ctx context.Context, trade *domain.Trade) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (event_id, token, trader, side, xlm_amount, token_amount, ledger, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		trade.EventID, trade.Token, trade.Trader, string(trade.Side),
		trade.XLMAmount, trade.TokenAmount, int64(trade.Ledger), trade.ClosedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// CountByToken returns the number of trades recorded for a token.
func (r *TradeRepo) CountByToken(ctx context.Context, token string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM trades WHERE token = $1`, token)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}
