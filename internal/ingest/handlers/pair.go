package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// PairHandlers processes AMM pair events: liquidity changes and swaps.
// The pool address is the emitting contract.
type PairHandlers struct {
	liquidity storage.LiquidityRepository
	swaps     storage.SwapRepository
	traders   storage.TraderRepository
}

// HandleLiquidityAdded records a liquidity add.
func (h *PairHandlers) HandleLiquidityAdded(ctx context.Context, evt domain.Event) error {
	return h.applyLiquidity(ctx, evt, domain.LiquidityAdded)
}

// HandleLiquidityRemoved records a liquidity removal.
func (h *PairHandlers) HandleLiquidityRemoved(ctx context.Context, evt domain.Event) error {
	return h.applyLiquidity(ctx, evt, domain.LiquidityRemoved)
}

func (h *PairHandlers) applyLiquidity(ctx context.Context, evt domain.Event, dir domain.LiquidityDirection) error {
	var p domain.LiquidityPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Provider == "" {
		return fmt.Errorf("%w: liquidity event missing provider", ErrMalformedPayload)
	}

	created, err := h.liquidity.Insert(ctx, &domain.LiquidityChange{
		EventID:   evt.ID,
		Pool:      evt.Contract,
		Provider:  p.Provider,
		Direction: dir,
		Amount0:   p.Amount0,
		Amount1:   p.Amount1,
		Liquidity: p.Liquidity,
		Ledger:    evt.Ledger,
		ClosedAt:  evt.ClosedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert liquidity event: %w", err)
	}
	if !created {
		return nil
	}

	if err := h.traders.Credit(ctx, p.Provider, domain.TraderCredit{
		Points: domain.PointsLiquidity,
	}); err != nil {
		return fmt.Errorf("failed to credit provider: %w", err)
	}
	return nil
}

// HandleSwap records a pair swap.
func (h *PairHandlers) HandleSwap(ctx context.Context, evt domain.Event) error {
	var p domain.SwapPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Sender == "" {
		return fmt.Errorf("%w: swap event missing sender", ErrMalformedPayload)
	}

	created, err := h.swaps.Insert(ctx, &domain.Swap{
		EventID:   evt.ID,
		Pool:      evt.Contract,
		Sender:    p.Sender,
		TokenIn:   p.TokenIn,
		TokenOut:  p.TokenOut,
		AmountIn:  p.AmountIn,
		AmountOut: p.AmountOut,
		Ledger:    evt.Ledger,
		ClosedAt:  evt.ClosedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	if !created {
		return nil
	}

	if err := h.traders.Credit(ctx, p.Sender, domain.TraderCredit{
		Points: domain.PointsSwap,
		Trades: 1,
	}); err != nil {
		return fmt.Errorf("failed to credit sender: %w", err)
	}
	return nil
}
