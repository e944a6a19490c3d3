package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// FactoryHandlers processes token-factory events: created, buy, sell,
// graduate.
type FactoryHandlers struct {
	tokens  storage.TokenRepository
	trades  storage.TradeRepository
	traders storage.TraderRepository
}

// HandleCreated registers a new bonding-curve token and credits its
// creator.
func (h *FactoryHandlers) HandleCreated(ctx context.Context, evt domain.Event) error {
	var p domain.TokenCreatedPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Token == "" || p.Creator == "" {
		return fmt.Errorf("%w: created event missing token or creator", ErrMalformedPayload)
	}

	created, err := h.tokens.Create(ctx, &domain.Token{
		Address:       p.Token,
		Creator:       p.Creator,
		Name:          p.Name,
		Symbol:        p.Symbol,
		Status:        domain.TokenStatusBonding,
		CreatedLedger: evt.Ledger,
	})
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	if !created {
		// Duplicate delivery, creator was already credited.
		return nil
	}

	if err := h.traders.Credit(ctx, p.Creator, domain.TraderCredit{
		Points:        domain.PointsCreate,
		TokensCreated: 1,
	}); err != nil {
		return fmt.Errorf("failed to credit creator: %w", err)
	}
	return nil
}

// HandleBought records a bonding-curve buy.
func (h *FactoryHandlers) HandleBought(ctx context.Context, evt domain.Event) error {
	var p domain.TokensBoughtPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Token == "" || p.Buyer == "" {
		return fmt.Errorf("%w: buy event missing token or buyer", ErrMalformedPayload)
	}

	return h.applyTrade(ctx, &domain.Trade{
		EventID:     evt.ID,
		Token:       p.Token,
		Trader:      p.Buyer,
		Side:        domain.TradeSideBuy,
		XLMAmount:   p.XLMAmount,
		TokenAmount: p.TokensReceived,
		Ledger:      evt.Ledger,
		ClosedAt:    evt.ClosedAt,
	})
}

// HandleSold records a bonding-curve sell.
func (h *FactoryHandlers) HandleSold(ctx context.Context, evt domain.Event) error {
	var p domain.TokensSoldPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Token == "" || p.Seller == "" {
		return fmt.Errorf("%w: sell event missing token or seller", ErrMalformedPayload)
	}

	return h.applyTrade(ctx, &domain.Trade{
		EventID:     evt.ID,
		Token:       p.Token,
		Trader:      p.Seller,
		Side:        domain.TradeSideSell,
		XLMAmount:   p.XLMReceived,
		TokenAmount: p.TokensSold,
		Ledger:      evt.Ledger,
		ClosedAt:    evt.ClosedAt,
	})
}

// applyTrade inserts the trade row and, when the row is new, applies
// the derived bookkeeping: token volume and trader credit.
func (h *FactoryHandlers) applyTrade(ctx context.Context, trade *domain.Trade) error {
	created, err := h.trades.Insert(ctx, trade)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	if !created {
		return nil
	}

	if err := h.tokens.AddVolume(ctx, trade.Token, trade.XLMAmount); err != nil {
		return fmt.Errorf("failed to add token volume: %w", err)
	}

	if err := h.traders.Credit(ctx, trade.Trader, domain.TraderCredit{
		Points:    domain.PointsTrade,
		VolumeXLM: trade.XLMAmount,
		Trades:    1,
	}); err != nil {
		return fmt.Errorf("failed to credit trader: %w", err)
	}
	return nil
}

// HandleGraduated moves a token off the bonding curve. Re-applying the
// same graduation writes the same values, so no dedup guard is needed.
func (h *FactoryHandlers) HandleGraduated(ctx context.Context, evt domain.Event) error {
	var p domain.TokenGraduatedPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Token == "" {
		return fmt.Errorf("%w: graduate event missing token", ErrMalformedPayload)
	}

	if err := h.tokens.MarkGraduated(ctx, p.Token, p.XLMRaised, evt.Ledger); err != nil {
		return fmt.Errorf("failed to mark token graduated: %w", err)
	}
	return nil
}
