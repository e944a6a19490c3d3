package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// =============================================================================
// Mock Sink
// =============================================================================

type mockSink struct {
	mu      sync.Mutex
	batches [][]domain.Event
	failNth int // 1-based index of the call that fails; 0 = never
	calls   int
}

func (s *mockSink) flush(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failNth != 0 && s.calls == s.failNth {
		return errors.New("storage unavailable")
	}
	batch := make([]domain.Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *mockSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *mockSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func testEvent(i int) domain.Event {
	return domain.Event{
		ID:       fmt.Sprintf("evt-%d", i),
		Ledger:   uint32(1000 + i),
		Contract: "CFACTORY",
		Kind:     domain.EventKindTokensBought,
		Payload:  []byte(`{}`),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// =============================================================================
// Backpressure Tests
// =============================================================================

func TestAddBackpressureAtQueueCap(t *testing.T) {
	sink := &mockSink{}
	// MaxSize above MaxQueue so no size flush empties the buffer mid-test.
	p := New(Config{MaxSize: 100, MaxWait: time.Hour, MaxQueue: 5}, sink.flush)
	defer p.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		if !p.Add(testEvent(i)) {
			t.Fatalf("Add %d: expected true below cap", i)
		}
	}

	if p.Add(testEvent(5)) {
		t.Error("expected Add to return false at queue cap")
	}
	if got := p.Stats().Pending; got != 5 {
		t.Errorf("expected 5 pending after rejected add, got %d", got)
	}
}

func TestAddAfterShutdown(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 10, MaxWait: time.Hour, MaxQueue: 100}, sink.flush)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if p.Add(testEvent(0)) {
		t.Error("expected Add to return false after shutdown")
	}
}

// =============================================================================
// Flush Trigger Tests
// =============================================================================

func TestFlushAtMaxSize(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 3, MaxWait: time.Hour, MaxQueue: 100}, sink.flush)
	defer p.Shutdown(context.Background())

	p.Add(testEvent(0))
	p.Add(testEvent(1))
	if got := sink.batchCount(); got != 0 {
		t.Fatalf("expected no flush below max size, got %d batches", got)
	}

	p.Add(testEvent(2))

	waitFor(t, 2*time.Second, func() bool { return sink.batchCount() == 1 },
		"size-triggered flush")

	sink.mu.Lock()
	batch := sink.batches[0]
	sink.mu.Unlock()
	if len(batch) != 3 {
		t.Errorf("expected batch of 3, got %d", len(batch))
	}
	// Enqueue order preserved within the batch.
	for i, ev := range batch {
		if want := fmt.Sprintf("evt-%d", i); ev.ID != want {
			t.Errorf("batch[%d]: expected %s, got %s", i, want, ev.ID)
		}
	}
}

func TestFlushOnElapsedWait(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 100, MaxWait: 50 * time.Millisecond, MaxQueue: 100}, sink.flush)
	defer p.Shutdown(context.Background())

	p.Add(testEvent(0))
	p.Add(testEvent(1))

	waitFor(t, 2*time.Second, func() bool { return sink.total() == 2 },
		"time-triggered flush")

	if got := p.Stats().Pending; got != 0 {
		t.Errorf("expected 0 pending after time flush, got %d", got)
	}
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestShutdownDrainsPending(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 100, MaxWait: time.Hour, MaxQueue: 1000}, sink.flush)

	for i := 0; i < 50; i++ {
		if !p.Add(testEvent(i)) {
			t.Fatalf("Add %d rejected unexpectedly", i)
		}
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := sink.total(); got != 50 {
		t.Errorf("expected 50 events flushed on shutdown, got %d", got)
	}

	stats := p.Stats()
	if stats.Pending != 0 {
		t.Errorf("expected 0 pending after shutdown, got %d", stats.Pending)
	}
	if stats.Processed != 50 {
		t.Errorf("expected 50 processed, got %d", stats.Processed)
	}
	if stats.InFlight != 0 {
		t.Errorf("expected 0 in flight after shutdown, got %d", stats.InFlight)
	}
}

func TestShutdownTwice(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 10, MaxWait: time.Hour, MaxQueue: 100}, sink.flush)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown failed: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestFlushFailureDoesNotBlockNextBatch(t *testing.T) {
	sink := &mockSink{failNth: 1}
	p := New(Config{MaxSize: 2, MaxWait: time.Hour, MaxQueue: 100}, sink.flush)
	defer p.Shutdown(context.Background())

	// First batch fails in the sink.
	p.Add(testEvent(0))
	p.Add(testEvent(1))

	waitFor(t, 2*time.Second, func() bool { return p.Stats().Failed == 2 },
		"failed batch counted")

	// Second batch still goes through.
	p.Add(testEvent(2))
	p.Add(testEvent(3))

	waitFor(t, 2*time.Second, func() bool { return p.Stats().Processed == 2 },
		"subsequent batch processed")

	if got := sink.total(); got != 2 {
		t.Errorf("expected 2 events persisted, got %d", got)
	}
}

// =============================================================================
// Stats Tests
// =============================================================================

func TestStatsCounters(t *testing.T) {
	sink := &mockSink{}
	p := New(Config{MaxSize: 5, MaxWait: time.Hour, MaxQueue: 100}, sink.flush)

	for i := 0; i < 12; i++ {
		p.Add(testEvent(i))
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	stats := p.Stats()
	if stats.Processed != 12 {
		t.Errorf("expected 12 processed, got %d", stats.Processed)
	}
	// Two size flushes plus the shutdown drain of the remainder.
	if stats.Flushes != 3 {
		t.Errorf("expected 3 flushes, got %d", stats.Flushes)
	}
	if stats.Failed != 0 {
		t.Errorf("expected 0 failed, got %d", stats.Failed)
	}
}
