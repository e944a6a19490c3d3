package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// ===== Checkpoint Repository =====

func TestCheckpointUpsertIgnoresRegression(t *testing.T) {
	repo := NewCheckpointRepo(NewMemoryStorage())
	ctx := context.Background()

	if err := repo.Upsert(ctx, &domain.Checkpoint{StreamID: "factory", LastLedger: 100}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, &domain.Checkpoint{StreamID: "factory", LastLedger: 90}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cp, err := repo.Get(ctx, "factory")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.LastLedger != 100 {
		t.Errorf("expected ledger 100 after stale write, got %d", cp.LastLedger)
	}
}

func TestCheckpointGetMissing(t *testing.T) {
	repo := NewCheckpointRepo(NewMemoryStorage())

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, storage.ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}
}

// ===== Token Repository =====

func TestTokenCreateDuplicate(t *testing.T) {
	repo := NewTokenRepo(NewMemoryStorage())
	ctx := context.Background()
	token := &domain.Token{Address: "CTOKEN", Creator: "GCREATOR", Name: "Pump", Symbol: "PMP", Status: domain.TokenStatusBonding}

	created, err := repo.Create(ctx, token)
	if err != nil || !created {
		t.Fatalf("first Create = (%v, %v), want (true, nil)", created, err)
	}
	created, err = repo.Create(ctx, token)
	if err != nil || created {
		t.Fatalf("second Create = (%v, %v), want (false, nil)", created, err)
	}
}

func TestTokenAddVolumeAccumulates(t *testing.T) {
	repo := NewTokenRepo(NewMemoryStorage())
	ctx := context.Background()

	if _, err := repo.Create(ctx, &domain.Token{Address: "CTOKEN"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.AddVolume(ctx, "CTOKEN", "1000000"); err != nil {
		t.Fatalf("AddVolume failed: %v", err)
	}
	if err := repo.AddVolume(ctx, "CTOKEN", "500000"); err != nil {
		t.Fatalf("AddVolume failed: %v", err)
	}

	token, err := repo.Get(ctx, "CTOKEN")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if token.VolumeXLM != "1500000" {
		t.Errorf("expected volume 1500000, got %s", token.VolumeXLM)
	}
}

func TestTokenMarkGraduated(t *testing.T) {
	repo := NewTokenRepo(NewMemoryStorage())
	ctx := context.Background()

	if _, err := repo.Create(ctx, &domain.Token{Address: "CTOKEN", Status: domain.TokenStatusBonding}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.MarkGraduated(ctx, "CTOKEN", "69000000000", 2000); err != nil {
		t.Fatalf("MarkGraduated failed: %v", err)
	}

	token, _ := repo.Get(ctx, "CTOKEN")
	if token.Status != domain.TokenStatusGraduated {
		t.Errorf("expected graduated status, got %s", token.Status)
	}
	if token.GraduatedLedger != 2000 {
		t.Errorf("expected graduated ledger 2000, got %d", token.GraduatedLedger)
	}

	if err := repo.MarkGraduated(ctx, "missing", "1", 1); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

// ===== Trade Repository =====

func TestTradeInsertDuplicate(t *testing.T) {
	repo := NewTradeRepo(NewMemoryStorage())
	ctx := context.Background()
	trade := &domain.Trade{EventID: "evt-1", Token: "CTOKEN", Trader: "GBUYER", Side: domain.TradeSideBuy}

	created, err := repo.Insert(ctx, trade)
	if err != nil || !created {
		t.Fatalf("first Insert = (%v, %v), want (true, nil)", created, err)
	}
	created, err = repo.Insert(ctx, trade)
	if err != nil || created {
		t.Fatalf("second Insert = (%v, %v), want (false, nil)", created, err)
	}

	n, err := repo.CountByToken(ctx, "CTOKEN")
	if err != nil {
		t.Fatalf("CountByToken failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one trade row, got %d", n)
	}
}

// ===== Trader Repository =====

func TestTraderCreditAccumulatesAndLevels(t *testing.T) {
	repo := NewTraderRepo(NewMemoryStorage())
	ctx := context.Background()

	if err := repo.Credit(ctx, "GTRADER", domain.TraderCredit{Points: 490, VolumeXLM: "1000", Trades: 1}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	trader, err := repo.Get(ctx, "GTRADER")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if trader.Level != domain.TraderLevelBronze {
		t.Errorf("expected bronze at 490 points, got %s", trader.Level)
	}

	if err := repo.Credit(ctx, "GTRADER", domain.TraderCredit{Points: 10, VolumeXLM: "500", Trades: 1}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	trader, _ = repo.Get(ctx, "GTRADER")
	if trader.Points != 500 {
		t.Errorf("expected 500 points, got %d", trader.Points)
	}
	if trader.Level != domain.TraderLevelSilver {
		t.Errorf("expected silver at 500 points, got %s", trader.Level)
	}
	if trader.VolumeXLM != "1500" {
		t.Errorf("expected volume 1500, got %s", trader.VolumeXLM)
	}
	if trader.TradeCount != 2 {
		t.Errorf("expected 2 trades, got %d", trader.TradeCount)
	}
}

func TestTraderCreditCreatedCounter(t *testing.T) {
	repo := NewTraderRepo(NewMemoryStorage())
	ctx := context.Background()

	if err := repo.Credit(ctx, "GCREATOR", domain.TraderCredit{Points: domain.PointsCreate, TokensCreated: 1}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	trader, _ := repo.Get(ctx, "GCREATOR")
	if trader.TokensCreated != 1 {
		t.Errorf("expected 1 token created, got %d", trader.TokensCreated)
	}
	if trader.Points != 50 {
		t.Errorf("expected 50 points, got %d", trader.Points)
	}
}

// ===== Event Repository =====

func TestEventSaveBatchSkipsDuplicates(t *testing.T) {
	repo := NewEventRepo(NewMemoryStorage())
	ctx := context.Background()

	batch := []domain.Event{
		{ID: "evt-1", Contract: "CFACTORY", Kind: domain.EventKindTokensBought},
		{ID: "evt-2", Contract: "CFACTORY", Kind: domain.EventKindTokensSold},
	}
	if err := repo.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}
	if err := repo.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	n, err := repo.CountByContract(ctx, "CFACTORY")
	if err != nil {
		t.Fatalf("CountByContract failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 journaled events, got %d", n)
	}
}

// ===== Amount Arithmetic =====

func TestAddAmount(t *testing.T) {
	tests := []struct {
		a, b    string
		want    string
		wantErr bool
	}{
		{"", "", "0", false},
		{"0", "100", "100", false},
		{"", "42", "42", false},
		{"170141183460469231731687303715884105727", "1", "170141183460469231731687303715884105728", false},
		{"abc", "1", "", true},
	}

	for _, tt := range tests {
		got, err := addAmount(tt.a, tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("addAmount(%q, %q) expected error", tt.a, tt.b)
			}
			continue
		}
		if err != nil {
			t.Errorf("addAmount(%q, %q) failed: %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.want {
			t.Errorf("addAmount(%q, %q) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}
