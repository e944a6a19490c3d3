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

// TraderRepo implements storage.TraderRepository using PostgreSQL.
type TraderRepo struct {
	db *DB
}

// NewTraderRepo creates a new PostgreSQL trader repository.
func NewTraderRepo(db *DB) *TraderRepo {
	return &TraderRepo{db: db}
}

type traderRow struct {
	Address       string    `db:"address"`
	Points        int64     `db:"points"`
	Level         string    `db:"level"`
	VolumeXLM     string    `db:"volume_xlm"`
	TokensCreated int       `db:"tokens_created"`
	TradeCount    int       `db:"trade_count"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r traderRow) toDomain() *domain.Trader {
	return &domain.Trader{
		Address:       r.Address,
		Points:        r.Points,
		Level:         domain.TraderLevel(r.Level),
		VolumeXLM:     r.VolumeXLM,
		TokensCreated: r.TokensCreated,
		TradeCount:    r.TradeCount,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Credit accumulates activity onto a trader row and refreshes the level
// from the new lifetime total. Each stream has a single writer, so the
// level update does not race the insert.
func (r *TraderRepo) Credit(ctx context.Context, address string, c domain.TraderCredit) error {
	vol := c.VolumeXLM
	if vol == "" {
		vol = "0"
	}

	var points int64
	err := r.db.GetContext(ctx, &points, `
		INSERT INTO traders (address, points, level, volume_xlm, tokens_created, trade_count, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, now())
		ON CONFLICT (address) DO UPDATE SET
			points         = traders.points + EXCLUDED.points,
			volume_xlm     = traders.volume_xlm + EXCLUDED.volume_xlm,
			tokens_created = traders.tokens_created + EXCLUDED.tokens_created,
			trade_count    = traders.trade_count + EXCLUDED.trade_count,
			updated_at     = now()
		RETURNING points`,
		address, c.Points, string(domain.LevelForPoints(c.Points)), vol, c.TokensCreated, c.Trades)
	if err != nil {
		return fmt.Errorf("failed to credit trader: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE traders SET level = $2 WHERE address = $1`,
		address, string(domain.LevelForPoints(points)))
	if err != nil {
		return fmt.Errorf("failed to update trader level: %w", err)
	}
	return nil
}

// Get retrieves a trader by address.
func (r *TraderRepo) Get(ctx context.Context, address string) (*domain.Trader, error) {
	var row traderRow
	err := r.db.GetContext(ctx, &row, `
		SELECT address, points, level, volume_xlm, tokens_created, trade_count, updated_at
		FROM traders
		WHERE address = $1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTraderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}
	return row.toDomain(), nil
}
