package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
)

// Manager handles checkpoint reads and advancement for all streams.
type Manager interface {
	// LastLedger returns the last processed ledger for a stream.
	// ok is false when the stream has no checkpoint yet (first run).
	LastLedger(ctx context.Context, streamID string) (ledger uint32, ok bool, err error)

	// Advance moves the stream's checkpoint to ledger. Writes through to
	// the durable store first; the cache moves only after the write
	// succeeds. Ledgers at or below the cached position are ignored
	// (equal ledgers still refresh the event id).
	Advance(ctx context.Context, streamID string, ledger uint32, eventID string) error

	// Lag returns how many ledgers the stream trails the chain tip.
	Lag(ctx context.Context, streamID string, latestLedger uint32) (int64, error)

	// CacheStats returns read-through cache counters.
	CacheStats() CacheStats
}

// CacheStats holds read-through cache counters.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// DefaultManager implements Manager with a read-through cache in front
// of the repository.
type DefaultManager struct {
	repo  storage.CheckpointRepository
	mu    sync.RWMutex
	cache map[string]*domain.Checkpoint

	hits   atomic.Uint64
	misses atomic.Uint64
}

// LastLedger returns the last processed ledger for a stream.
func (m *DefaultManager) LastLedger(
	ctx context.Context,
	streamID string,
) (uint32, bool, error) {
	m.mu.RLock()
	cached, ok := m.cache[streamID]
	m.mu.RUnlock()

	if ok {
		m.hits.Add(1)
		return cached.LastLedger, true, nil
	}
	m.misses.Add(1)

	cp, err := m.repo.Get(ctx, streamID)
	if err != nil {
		if errors.Is(err, storage.ErrCheckpointNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	m.mu.Lock()
	m.cache[streamID] = cp
	m.mu.Unlock()

	return cp.LastLedger, true, nil
}

// Advance moves the stream's checkpoint forward.
func (m *DefaultManager) Advance(
	ctx context.Context,
	streamID string,
	ledger uint32,
	eventID string,
) error {
	m.mu.RLock()
	cached, ok := m.cache[streamID]
	m.mu.RUnlock()

	if ok && ledger < cached.LastLedger {
		// Stale position, likely a duplicate delivery. Not an error.
		slog.Debug("Ignoring stale checkpoint advance",
			"stream", streamID,
			"ledger", ledger,
			"current", cached.LastLedger,
		)
		return nil
	}

	// An empty event id means the poll window had no events; keep the
	// last one we saw.
	if eventID == "" && ok {
		eventID = cached.LastEventID
	}

	cp := &domain.Checkpoint{
		StreamID:    streamID,
		LastLedger:  ledger,
		LastEventID: eventID,
		UpdatedAt:   time.Now(),
	}

	// Durable write first. The repository ignores regressions on its
	// side too, which covers the cold-cache case.
	if err := m.repo.Upsert(ctx, cp); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	m.mu.Lock()
	if cur, ok := m.cache[streamID]; !ok || ledger >= cur.LastLedger {
		m.cache[streamID] = cp
	}
	m.mu.Unlock()

	return nil
}

// Lag returns how many ledgers the stream trails the chain tip.
func (m *DefaultManager) Lag(
	ctx context.Context,
	streamID string,
	latestLedger uint32,
) (int64, error) {
	ledger, ok, err := m.LastLedger(ctx, streamID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return int64(latestLedger), nil
	}
	return int64(latestLedger) - int64(ledger), nil
}

// CacheStats returns read-through cache counters.
func (m *DefaultManager) CacheStats() CacheStats {
	return CacheStats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}
