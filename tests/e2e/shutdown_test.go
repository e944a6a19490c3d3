package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/pumpwatch/internal/control"
	"github.com/vietddude/pumpwatch/internal/core/config"
)

// TestGracefulShutdown runs a full ingestor against an unreachable RPC
// endpoint and verifies that shutdown completes cleanly while poll
// cycles are failing. Uses the memory backend so no external services
// are needed.
func TestGracefulShutdown(t *testing.T) {
	cfg := control.Config{
		Port: 0,
		RPC: config.RPCConfig{
			URL:     "http://localhost:1",
			Timeout: time.Second,
		},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Contracts: []config.ContractConfig{
			{
				ID:           "CSHUTDOWNXXXXXXXXXXXXXXXXXXXXXXX",
				Name:         "token-factory",
				Kind:         "factory",
				StartLedger:  1,
				PollInterval: 200 * time.Millisecond,
				PageLimit:    100,
			},
		},
		Breaker: config.BreakerConfig{Threshold: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		Batch:   config.BatchConfig{MaxSize: 100, MaxWait: time.Second, MaxConcurrency: 2, MaxQueue: 1000},
	}

	in, err := control.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := in.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Let a few poll cycles fail against the dead endpoint.
	time.Sleep(2 * time.Second)

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() { done <- in.Stop(stopCtx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete within 10s")
	}

	if in.GetStatus().Running {
		t.Error("ingestor still reports running after Stop")
	}
}
