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

// TokenRepo implements storage.TokenRepository using PostgreSQL.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new PostgreSQL token repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

type tokenRow struct {
	Address         string    `db:"address"`
	Creator         string    `db:"creator"`
	Name            string    `db:"name"`
	Symbol          string    `db:"symbol"`
	Status          string    `db:"status"`
	VolumeXLM       string    `db:"volume_xlm"`
	XLMRaised       string    `db:"xlm_raised"`
	CreatedLedger   int64     `db:"created_ledger"`
	GraduatedLedger int64     `db:"graduated_ledger"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r tokenRow) toDomain() *domain.Token {
	return &domain.Token{
		Address:         r.Address,
		Creator:         r.Creator,
		Name:            r.Name,
		Symbol:          r.Symbol,
		Status:          domain.TokenStatus(r.Status),
		VolumeXLM:       r.VolumeXLM,
		XLMRaised:       r.XLMRaised,
		CreatedLedger:   uint32(r.CreatedLedger),
		GraduatedLedger: uint32(r.GraduatedLedger),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Create stores a token. Returns false when the address already exists.
func (r *TokenRepo) Create(ctx context.Context, token *domain.Token) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (address, creator, name, symbol, status, volume_xlm, xlm_raised, created_ledger, graduated_ledger, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, 0, now(), now())
		ON CONFLICT (address) DO NOTHING`,
		token.Address, token.Creator, token.Name, token.Symbol,
		string(token.Status), int64(token.CreatedLedger))
	if err != nil {
		return false, fmt.Errorf("failed to create token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkGraduated moves a token to graduated status.
func (r *TokenRepo) MarkGraduated(ctx context.Context, address, xlmRaised string, ledger uint32) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET status = $2, xlm_raised = $3::numeric, graduated_ledger = $4, updated_at = now()
		WHERE address = $1`,
		address, string(domain.TokenStatusGraduated), xlmRaised, int64(ledger))
	if err != nil {
		return fmt.Errorf("failed to mark token graduated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrTokenNotFound
	}
	return nil
}

// AddVolume accumulates traded XLM volume onto a token.
func (r *TokenRepo) AddVolume(ctx context.Context, address, xlmAmount string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET volume_xlm = volume_xlm + $2::numeric, updated_at = now()
		WHERE address = $1`,
		address, xlmAmount)
	if err != nil {
		return fmt.Errorf("failed to add token volume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrTokenNotFound
	}
	return nil
}

// Get retrieves a token by address.
func (r *TokenRepo) Get(ctx context.Context, address string) (*domain.Token, error) {
	var row tokenRow
	err := r.db.GetContext(ctx, &row, `
		SELECT address, creator, name, symbol, status, volume_xlm, xlm_raised, created_ledger, graduated_ledger, created_at, updated_at
		FROM tokens
		WHERE address = $1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return row.toDomain(), nil
}
