package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used by
// tests and by the memory storage backend.
type MemoryStorage struct {
	checkpoints map[string]*domain.Checkpoint
	tokens      map[string]*domain.Token
	trades      map[string]*domain.Trade
	liquidity   map[string]*domain.LiquidityChange
	swaps       map[string]*domain.Swap
	traders     map[string]*domain.Trader
	events      map[string]*domain.Event
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[string]*domain.Checkpoint),
		tokens:      make(map[string]*domain.Token),
		trades:      make(map[string]*domain.Trade),
		liquidity:   make(map[string]*domain.LiquidityChange),
		swaps:       make(map[string]*domain.Swap),
		traders:     make(map[string]*domain.Trader),
		events:      make(map[string]*domain.Event),
	}
}

// addAmount sums two decimal strings. Empty strings count as zero.
func addAmount(a, b string) (string, error) {
	x := new(big.Int)
	if a != "" {
		if _, ok := x.SetString(a, 10); !ok {
			return "", fmt.Errorf("invalid amount %q", a)
		}
	}
	y := new(big.Int)
	if b != "" {
		if _, ok := y.SetString(b, 10); !ok {
			return "", fmt.Errorf("invalid amount %q", b)
		}
	}
	return x.Add(x, y).String(), nil
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Get(ctx context.Context, streamID string) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp, ok := r.store.checkpoints[streamID]
	if !ok {
		return nil, storage.ErrCheckpointNotFound
	}
	out := *cp
	return &out, nil
}

func (r *CheckpointRepo) Upsert(ctx context.Context, cp *domain.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cur, ok := r.store.checkpoints[cp.StreamID]; ok && cur.LastLedger > cp.LastLedger {
		return nil
	}
	stored := *cp
	stored.UpdatedAt = time.Now()
	r.store.checkpoints[cp.StreamID] = &stored
	return nil
}

func (r *CheckpointRepo) All(ctx context.Context) ([]*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cps := make([]*domain.Checkpoint, 0, len(r.store.checkpoints))
	for _, cp := range r.store.checkpoints {
		out := *cp
		cps = append(cps, &out)
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].StreamID < cps[j].StreamID })
	return cps, nil
}

// -----------------------------------------------------------------------------
// Token Repository
// -----------------------------------------------------------------------------

type TokenRepo struct {
	store *MemoryStorage
}

func NewTokenRepo(store *MemoryStorage) *TokenRepo {
	return &TokenRepo{store: store}
}

func (r *TokenRepo) Create(ctx context.Context, token *domain.Token) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tokens[token.Address]; ok {
		return false, nil
	}
	stored := *token
	stored.VolumeXLM = "0"
	stored.XLMRaised = "0"
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.store.tokens[token.Address] = &stored
	return true, nil
}

func (r *TokenRepo) MarkGraduated(ctx context.Context, address, xlmRaised string, ledger uint32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	token, ok := r.store.tokens[address]
	if !ok {
		return storage.ErrTokenNotFound
	}
	token.Status = domain.TokenStatusGraduated
	token.XLMRaised = xlmRaised
	token.GraduatedLedger = ledger
	token.UpdatedAt = time.Now()
	return nil
}

func (r *TokenRepo) AddVolume(ctx context.Context, address, xlmAmount string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	token, ok := r.store.tokens[address]
	if !ok {
		return storage.ErrTokenNotFound
	}
	sum, err := addAmount(token.VolumeXLM, xlmAmount)
	if err != nil {
		return err
	}
	token.VolumeXLM = sum
	token.UpdatedAt = time.Now()
	return nil
}

func (r *TokenRepo) Get(ctx context.Context, address string) (*domain.Token, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	token, ok := r.store.tokens[address]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	out := *token
	return &out, nil
}

// -----------------------------------------------------------------------------
// Trade Repository
// -----------------------------------------------------------------------------

type TradeRepo struct {
	store *MemoryStorage
}

func NewTradeRepo(store *MemoryStorage) *TradeRepo {
	return &TradeRepo{store: store}
}

func (r *TradeRepo) Insert(ctx context.Context, trade *domain.Trade) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.trades[trade.EventID]; ok {
		return false, nil
	}
	stored := *trade
	r.store.trades[trade.EventID] = &stored
	return true, nil
}

func (r *TradeRepo) CountByToken(ctx context.Context, token string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, t := range r.store.trades {
		if t.Token == token {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Liquidity Repository
// -----------------------------------------------------------------------------

type LiquidityRepo struct {
	store *MemoryStorage
}

func NewLiquidityRepo(store *MemoryStorage) *LiquidityRepo {
	return &LiquidityRepo{store: store}
}

func (r *LiquidityRepo) Insert(ctx context.Context, lc *domain.LiquidityChange) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.liquidity[lc.EventID]; ok {
		return false, nil
	}
	stored := *lc
	r.store.liquidity[lc.EventID] = &stored
	return true, nil
}

// -----------------------------------------------------------------------------
// Swap Repository
// -----------------------------------------------------------------------------

type SwapRepo struct {
	store *MemoryStorage
}

func NewSwapRepo(store *MemoryStorage) *SwapRepo {
	return &SwapRepo{store: store}
}

func (r *SwapRepo) Insert(ctx context.Context, swap *domain.Swap) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.swaps[swap.EventID]; ok {
		return false, nil
	}
	stored := *swap
	r.store.swaps[swap.EventID] = &stored
	return true, nil
}

// -----------------------------------------------------------------------------
// Trader Repository
// -----------------------------------------------------------------------------

type TraderRepo struct {
	store *MemoryStorage
}

func NewTraderRepo(store *MemoryStorage) *TraderRepo {
	return &TraderRepo{store: store}
}

func (r *TraderRepo) Credit(ctx context.Context, address string, c domain.TraderCredit) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	trader, ok := r.store.traders[address]
	if !ok {
		trader = &domain.Trader{Address: address, VolumeXLM: "0", Level: domain.TraderLevelBronze}
		r.store.traders[address] = trader
	}
	sum, err := addAmount(trader.VolumeXLM, c.VolumeXLM)
	if err != nil {
		return err
	}
	trader.Points += c.Points
	trader.VolumeXLM = sum
	trader.TokensCreated += c.TokensCreated
	trader.TradeCount += c.Trades
	trader.Level = domain.LevelForPoints(trader.Points)
	trader.UpdatedAt = time.Now()
	return nil
}

func (r *TraderRepo) Get(ctx context.Context, address string) (*domain.Trader, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	trader, ok := r.store.traders[address]
	if !ok {
		return nil, storage.ErrTraderNotFound
	}
	out := *trader
	return &out, nil
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) SaveBatch(ctx context.Context, events []domain.Event) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, e := range events {
		if _, ok := r.store.events[e.ID]; ok {
			continue
		}
		stored := e
		r.store.events[e.ID] = &stored
	}
	return nil
}

func (r *EventRepo) CountByContract(ctx context.Context, contract string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, e := range r.store.events {
		if e.Contract == contract {
			n++
		}
	}
	return n, nil
}

func (r *EventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, e := range r.store.events {
		if e.ClosedAt.Before(cutoff) {
			delete(r.store.events, id)
			n++
		}
	}
	return n, nil
}
