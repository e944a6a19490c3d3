// Package worker holds background maintenance loops that run beside the
// ingestion streams.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// Pruner enforces the retention policy on the raw event journal. Derived
// tables (tokens, trades, traders) hold the product and are never pruned;
// only contract_events rows older than the retention window go.
type Pruner struct {
	retention time.Duration
	events    storage.EventRepository
}

// NewPruner creates a journal pruner. A retention of zero disables it.
func NewPruner(retention time.Duration, events storage.EventRepository) *Pruner {
	return &Pruner{
		retention: retention,
		events:    events,
	}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	n, err := p.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune event journal", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned event journal", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
