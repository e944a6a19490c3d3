// Package handlers applies classified contract events to storage.
//
// # Purpose
//
// Each event kind has one handler. Handlers are idempotent: record
// rows are keyed by the chain event id, and derived bookkeeping
// (token volume, trader points) only runs when the insert actually
// created a row. Replaying a poll window is therefore harmless.
//
// # Quick Start
//
//	reg := handlers.NewRegistry(handlers.Deps{
//		Tokens:    tokenRepo,
//		Trades:    tradeRepo,
//		Liquidity: liquidityRepo,
//		Swaps:     swapRepo,
//		Traders:   traderRepo,
//	})
//	err := reg.Handle(ctx, evt)
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

var (
	// ErrMalformedPayload marks events whose payload failed to decode or
	// was missing required fields.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNoHandler is returned when an event kind has no registered handler.
	ErrNoHandler = errors.New("no handler registered")
)

// Handler processes one classified event.
type Handler func(ctx context.Context, evt domain.Event) error

// Deps bundles the repositories handlers write to.
type Deps struct {
	Tokens    storage.TokenRepository
	Trades    storage.TradeRepository
	Liquidity storage.LiquidityRepository
	Swaps     storage.SwapRepository
	Traders   storage.TraderRepository
}

// Registry maps event kinds to handlers. Built once at wiring time and
// shared read-only by the pollers.
type Registry struct {
	handlers map[domain.EventKind]Handler
}

// NewRegistry builds the full dispatch table for the factory and pair
// event families.
func NewRegistry(deps Deps) *Registry {
	factory := &FactoryHandlers{
		tokens:  deps.Tokens,
		trades:  deps.Trades,
		traders: deps.Traders,
	}
	pair := &PairHandlers{
		liquidity: deps.Liquidity,
		swaps:     deps.Swaps,
		traders:   deps.Traders,
	}

	r := &Registry{handlers: make(map[domain.EventKind]Handler)}
	r.Register(domain.EventKindTokenCreated, factory.HandleCreated)
	r.Register(domain.EventKindTokensBought, factory.HandleBought)
	r.Register(domain.EventKindTokensSold, factory.HandleSold)
	r.Register(domain.EventKindTokenGraduated, factory.HandleGraduated)
	r.Register(domain.EventKindLiquidityAdded, pair.HandleLiquidityAdded)
	r.Register(domain.EventKindLiquidityRemoved, pair.HandleLiquidityRemoved)
	r.Register(domain.EventKindSwap, pair.HandleSwap)
	return r
}

// Register installs a handler for a kind, replacing any previous one.
func (r *Registry) Register(kind domain.EventKind, h Handler) {
	r.handlers[kind] = h
}

// Handle dispatches an event to its handler.
func (r *Registry) Handle(ctx context.Context, evt domain.Event) error {
	h, ok := r.handlers[evt.Kind]
	if !ok {
		return fmt.Errorf("%w for kind %q", ErrNoHandler, evt.Kind)
	}
	return h(ctx, evt)
}
