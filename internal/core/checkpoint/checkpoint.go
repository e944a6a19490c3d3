// Package checkpoint tracks the last processed ledger for each stream.
//
// # Purpose
//
// A checkpoint is the durable bookmark of one stream (one monitored
// contract): the last ledger whose events were handed off, plus the id
// of the last event seen there. On restart the poller resumes from
// checkpoint+1 instead of rescanning history.
//
// # Key Properties
//
// Monotonic - Advance ignores any ledger below the stored position, so
// the bookmark never moves backwards:
//
//	mgr.Advance(ctx, "factory", 1005, "evt-9")  // ✓ stored
//	mgr.Advance(ctx, "factory", 1003, "evt-2")  // ignored, still 1005
//
// Durable-first - Advance writes through to the repository before the
// in-memory cache moves. A failed write surfaces to the caller and
// leaves the cache untouched, so progress is never faked.
//
// Read-through cache - LastLedger serves from memory after the first
// load; cache hit/miss counters are exposed for health reporting.
//
// # Quick Start
//
//	mgr := checkpoint.NewManager(checkpointRepo)
//
//	ledger, ok, err := mgr.LastLedger(ctx, "factory")
//	if !ok {
//	    // first run: no checkpoint yet, resolve a start position
//	}
//
//	mgr.Advance(ctx, "factory", resp.LatestLedger, lastEventID)
package checkpoint

import (
	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// Checkpoint re-exports the domain type for convenience.
type Checkpoint = domain.Checkpoint

// NewManager creates a checkpoint manager backed by the given repository.
func NewManager(repo storage.CheckpointRepository) *DefaultManager {
	return &DefaultManager{
		repo:  repo,
		cache: make(map[string]*domain.Checkpoint),
	}
}
