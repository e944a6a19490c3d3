package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

var (
	// ErrCheckpointNotFound is returned when a stream has no checkpoint yet.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrTokenNotFound is returned when a token doesn't exist.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTraderNotFound is returned when a trader doesn't exist.
	ErrTraderNotFound = errors.New("trader not found")
)

// CheckpointRepository handles per-stream checkpoint storage.
type CheckpointRepository interface {
	// Get retrieves the checkpoint for a stream.
	Get(ctx context.Context, streamID string) (*domain.Checkpoint, error)

	// Upsert writes the checkpoint. A write whose LastLedger is below the
	// stored value is ignored, so the position never regresses.
	Upsert(ctx context.Context, cp *domain.Checkpoint) error

	// All retrieves every checkpoint (status reporting).
	All(ctx context.Context) ([]*domain.Checkpoint, error)
}

// TokenRepository handles launchpad token records.
type TokenRepository interface {
	// Create stores a token keyed by address. Returns false when the
	// address was already present (duplicate delivery).
	Create(ctx context.Context, token *domain.Token) (bool, error)

	// MarkGraduated moves a token to graduated status.
	MarkGraduated(ctx context.Context, address, xlmRaised string, ledger uint32) error

	// AddVolume accumulates traded XLM volume onto a token.
	AddVolume(ctx context.Context, address, xlmAmount string) error

	// Get retrieves a token by address.
	Get(ctx context.Context, address string) (*domain.Token, error)
}

// TradeRepository handles bonding-curve trade rows.
type TradeRepository interface {
	// Insert stores a trade keyed by event id. Returns false when the
	// event id was already present (duplicate delivery).
	Insert(ctx context.Context, trade *domain.Trade) (bool, error)

	// CountByToken returns the number of trades recorded for a token.
	CountByToken(ctx context.Context, token string) (int, error)
}

// LiquidityRepository handles AMM liquidity event rows.
type LiquidityRepository interface {
	// Insert stores a liquidity change keyed by event id. Returns false
	// on duplicate delivery.
	Insert(ctx context.Context, lc *domain.LiquidityChange) (bool, error)
}

// SwapRepository handles AMM swap rows.
type SwapRepository interface {
	// Insert stores a swap keyed by event id. Returns false on duplicate
	// delivery.
	Insert(ctx context.Context, swap *domain.Swap) (bool, error)
}

// TraderRepository handles per-wallet derived stats.
type TraderRepository interface {
	// Credit accumulates points, volume and counters onto a trader and
	// recomputes the level. Creates the trader row when missing.
	Credit(ctx context.Context, address string, c domain.TraderCredit) error

	// Get retrieves a trader by address.
	Get(ctx context.Context, address string) (*domain.Trader, error)
}

// EventRepository is the batch flush target: an append-only journal of
// every classified event, keyed by event id.
type EventRepository interface {
	// SaveBatch appends events; rows whose event id already exists are
	// skipped silently.
	SaveBatch(ctx context.Context, events []domain.Event) error

	// CountByContract returns the number of journaled events for a contract.
	CountByContract(ctx context.Context, contract string) (int, error)

	// DeleteBefore removes journal rows whose ledger close time is older
	// than cutoff. Returns the number of rows removed. Derived tables are
	// untouched; only the raw journal is subject to retention.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
