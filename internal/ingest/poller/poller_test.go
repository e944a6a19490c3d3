package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/breaker"
	"github.com/vietddude/pumpwatch/internal/core/checkpoint"
	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/ingest/batch"
	"github.com/vietddude/pumpwatch/internal/ingest/handlers"
	"github.com/vietddude/pumpwatch/internal/infra/rpc"
	"github.com/vietddude/pumpwatch/internal/infra/storage/memory"
)

// ===== Mocks =====

type mockRPC struct {
	mu       sync.Mutex
	pages    []rpc.EventsResponse
	errs     []error
	requests []rpc.EventsRequest
	calls    int

	latest rpc.LatestLedger
}

func (m *mockRPC) GetEvents(ctx context.Context, req rpc.EventsRequest) (rpc.EventsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return rpc.EventsResponse{}, m.errs[idx]
	}
	if idx < len(m.pages) {
		return m.pages[idx], nil
	}
	return rpc.EventsResponse{LatestLedger: m.latest.Sequence}, nil
}

func (m *mockRPC) GetLatestLedger(ctx context.Context) (rpc.LatestLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *mockRPC) Health(ctx context.Context) error { return nil }

func (m *mockRPC) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockRPC) request(i int) rpc.EventsRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

type mockBatcher struct {
	mu       sync.Mutex
	capacity int // negative means unlimited
	events   []domain.Event
	shutdown bool
}

func (m *mockBatcher) Add(evt domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity >= 0 && len(m.events) >= m.capacity {
		return false
	}
	m.events = append(m.events, evt)
	return true
}

func (m *mockBatcher) Stats() batch.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return batch.Stats{Pending: len(m.events)}
}

func (m *mockBatcher) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	return nil
}

func (m *mockBatcher) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockHandler struct {
	mu      sync.Mutex
	handled []domain.Event
	failOn  map[string]error
}

func (m *mockHandler) Handle(ctx context.Context, evt domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failOn[evt.ID]; ok {
		return err
	}
	m.handled = append(m.handled, evt)
	return nil
}

func (m *mockHandler) handledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handled)
}

type mockDeadStore struct {
	mu      sync.Mutex
	entries []*domain.FailedEvent
}

func (m *mockDeadStore) Add(ctx context.Context, fe *domain.FailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, fe)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ===== Fixture =====

const testContract = "CFACTORYXXXXXXXXXXXXXXXXXXXXXXXX"

type fixture struct {
	rpc     *mockRPC
	batch   *mockBatcher
	handler *mockHandler
	dead    *mockDeadStore
	repo    *memory.CheckpointRepo
	cps     checkpoint.Manager
	clock   *fakeClock
	poller  *Poller
}

func newFixture(rpcMock *mockRPC, startLedger uint32) *fixture {
	f := &fixture{
		rpc:     rpcMock,
		batch:   &mockBatcher{capacity: -1},
		handler: &mockHandler{failOn: map[string]error{}},
		dead:    &mockDeadStore{},
		repo:    memory.NewCheckpointRepo(memory.NewMemoryStorage()),
		clock:   &fakeClock{now: time.Unix(1700000000, 0)},
	}
	f.cps = checkpoint.NewManager(f.repo)

	br := breaker.New(breaker.Config{
		Threshold: 5,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Minute,
	}, breaker.WithClock(f.clock.Now))

	f.poller = New(Config{
		Contract:     domain.Contract{ID: testContract, Name: "factory", Kind: domain.ContractKindFactory},
		Client:       rpcMock,
		Breaker:      br,
		Checkpoints:  f.cps,
		Batch:        f.batch,
		Handlers:     f.handler,
		DeadLetter:   NewRecorder(f.dead, testContract),
		PollInterval: 10 * time.Millisecond,
		StartLedger:  startLedger,
	})
	return f
}

func (f *fixture) lastLedger(t *testing.T) uint32 {
	t.Helper()
	ledger, _, err := f.cps.LastLedger(context.Background(), testContract)
	if err != nil {
		t.Fatalf("LastLedger: %v", err)
	}
	return ledger
}

func (f *fixture) seed(t *testing.T, ledger uint32, eventID string) {
	t.Helper()
	if err := f.cps.Advance(context.Background(), testContract, ledger, eventID); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}
}

func rawEvent(id string, ledger uint32, topic string) rpc.RawEvent {
	return rpc.RawEvent{
		ID:             id,
		Type:           "contract",
		Ledger:         ledger,
		LedgerClosedAt: time.Unix(1700000000, 0),
		ContractID:     testContract,
		Topic:          []string{topic},
		Value:          json.RawMessage(`{}`),
	}
}

// ===== Window and checkpoint =====

func TestPoller_ColdStartFromConfiguredLedger(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1002, domain.TopicCreated),
				rawEvent("evt-2", 1005, domain.TopicBuy),
			},
			LatestLedger: 1005,
		}},
	}, 1000)

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.rpc.request(0).StartLedger; got != 1000 {
		t.Errorf("first request start = %d, want 1000", got)
	}
	if got := f.lastLedger(t); got != 1005 {
		t.Errorf("checkpoint = %d, want 1005", got)
	}

	// The next cycle resumes one past the checkpoint.
	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("second pollOnce: %v", err)
	}
	if got := f.rpc.request(1).StartLedger; got != 1006 {
		t.Errorf("second request start = %d, want 1006", got)
	}
}

func TestPoller_ColdStartFromChainTip(t *testing.T) {
	f := newFixture(&mockRPC{
		latest: rpc.LatestLedger{Sequence: 5000},
	}, 0)

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.rpc.request(0).StartLedger; got != 5000 {
		t.Errorf("request start = %d, want 5000 (chain tip)", got)
	}
	if got := f.lastLedger(t); got != 5000 {
		t.Errorf("checkpoint = %d, want 5000", got)
	}
}

func TestPoller_EmptyWindowAdvancesToLatest(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{LatestLedger: 1010}},
	}, 0)
	f.seed(t, 1000, "evt-a")

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.lastLedger(t); got != 1010 {
		t.Errorf("checkpoint = %d, want 1010", got)
	}

	// No event in the window: the previous event id stays on record.
	cp, err := f.repo.Get(context.Background(), testContract)
	if err != nil {
		t.Fatalf("Get checkpoint: %v", err)
	}
	if cp.LastEventID != "evt-a" {
		t.Errorf("LastEventID = %q, want evt-a", cp.LastEventID)
	}
}

func TestPoller_CursorPagination(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{
			{
				Events: []rpc.RawEvent{
					rawEvent("evt-1", 1001, domain.TopicCreated),
					rawEvent("evt-2", 1002, domain.TopicBuy),
				},
				LatestLedger: 1010,
				Cursor:       "c1",
			},
			{
				Events:       []rpc.RawEvent{rawEvent("evt-3", 1004, domain.TopicSell)},
				LatestLedger: 1010,
			},
		},
	}, 1000)

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.rpc.callCount(); got != 2 {
		t.Fatalf("rpc calls = %d, want 2", got)
	}
	second := f.rpc.request(1)
	if second.Cursor != "c1" {
		t.Errorf("second request cursor = %q, want c1", second.Cursor)
	}
	if second.StartLedger != 0 {
		t.Errorf("second request start = %d, want 0 (cursor carries position)", second.StartLedger)
	}
	if got := f.batch.size(); got != 3 {
		t.Errorf("journaled = %d, want 3", got)
	}
	if got := f.lastLedger(t); got != 1010 {
		t.Errorf("checkpoint = %d, want 1010", got)
	}
}

func TestPoller_DispatchAndJournal(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1001, domain.TopicCreated),
				rawEvent("evt-2", 1002, domain.TopicBuy),
				rawEvent("evt-3", 1003, "mint"),
			},
			LatestLedger: 1003,
		}},
	}, 1000)

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	// All three are journaled, unknown kinds included.
	if got := f.batch.size(); got != 3 {
		t.Errorf("journaled = %d, want 3", got)
	}
	// Only the recognized ones reach handlers.
	if got := f.handler.handledCount(); got != 2 {
		t.Errorf("handled = %d, want 2", got)
	}
	if got := f.poller.GetStatus(context.Background()).Unknown; got != 1 {
		t.Errorf("unknown count = %d, want 1", got)
	}
	if got := f.lastLedger(t); got != 1003 {
		t.Errorf("checkpoint = %d, want 1003", got)
	}
}

// ===== Backpressure =====

func TestPoller_BackpressureTruncatesWindow(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1001, domain.TopicBuy),
				rawEvent("evt-2", 1002, domain.TopicBuy),
				rawEvent("evt-3", 1003, domain.TopicSell),
				rawEvent("evt-4", 1004, domain.TopicSell),
			},
			LatestLedger: 1004,
		}},
	}, 1000)
	f.batch.capacity = 2

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.batch.size(); got != 2 {
		t.Errorf("journaled = %d, want 2", got)
	}
	if got := f.handler.handledCount(); got != 2 {
		t.Errorf("handled = %d, want 2", got)
	}
	// Checkpoint covers only the accepted prefix, not the window.
	if got := f.lastLedger(t); got != 1002 {
		t.Errorf("checkpoint = %d, want 1002", got)
	}

	// The deferred remainder is refetched next cycle.
	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("second pollOnce: %v", err)
	}
	if got := f.rpc.request(1).StartLedger; got != 1003 {
		t.Errorf("second request start = %d, want 1003", got)
	}
}

func TestPoller_BackpressureBeforeFirstEvent(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1001, domain.TopicBuy),
				rawEvent("evt-2", 1002, domain.TopicBuy),
			},
			LatestLedger: 1002,
		}},
	}, 0)
	f.seed(t, 1000, "evt-0")
	f.batch.capacity = 0

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if got := f.batch.size(); got != 0 {
		t.Errorf("journaled = %d, want 0", got)
	}
	if got := f.lastLedger(t); got != 1000 {
		t.Errorf("checkpoint = %d, want 1000 (unchanged)", got)
	}
}

// ===== Failure paths =====

func TestPoller_RPCFailureKeepsCheckpoint(t *testing.T) {
	f := newFixture(&mockRPC{
		errs: []error{errors.New("connection refused")},
	}, 0)
	f.seed(t, 1000, "evt-0")

	if err := f.poller.pollOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing RPC")
	}

	if got := f.lastLedger(t); got != 1000 {
		t.Errorf("checkpoint = %d, want 1000 (unchanged)", got)
	}
}

func TestPoller_MidPaginationFailureKeepsPrefix(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1001, domain.TopicBuy),
				rawEvent("evt-2", 1002, domain.TopicBuy),
			},
			LatestLedger: 1010,
			Cursor:       "c1",
		}},
		errs: []error{nil, errors.New("timeout")},
	}, 1000)

	if err := f.poller.pollOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing second page")
	}

	// The first page was applied; the checkpoint keeps that prefix.
	if got := f.batch.size(); got != 2 {
		t.Errorf("journaled = %d, want 2", got)
	}
	if got := f.lastLedger(t); got != 1002 {
		t.Errorf("checkpoint = %d, want 1002", got)
	}
}

func TestPoller_BreakerOpensAndRecovers(t *testing.T) {
	boom := errors.New("rpc down")
	f := newFixture(&mockRPC{
		errs:   []error{boom, boom, boom, boom, boom},
		latest: rpc.LatestLedger{Sequence: 130},
	}, 0)
	f.seed(t, 100, "evt-0")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := f.poller.pollOnce(ctx); err == nil {
			t.Fatalf("cycle %d: expected error", i)
		}
	}
	if got := f.poller.GetStatus(ctx).Breaker.State; got != breaker.StateOpen {
		t.Fatalf("breaker state = %q, want open", got)
	}

	// While open, cycles skip the RPC entirely and report no error.
	if err := f.poller.pollOnce(ctx); err != nil {
		t.Fatalf("open-breaker cycle: %v", err)
	}
	if got := f.rpc.callCount(); got != 5 {
		t.Errorf("rpc calls = %d, want 5 (no call while open)", got)
	}

	// After the delay the probe goes through and the stream catches up.
	f.clock.advance(2 * time.Second)
	if err := f.poller.pollOnce(ctx); err != nil {
		t.Fatalf("recovery cycle: %v", err)
	}
	if got := f.lastLedger(t); got != 130 {
		t.Errorf("checkpoint = %d, want 130", got)
	}
	if got := f.poller.GetStatus(ctx).Breaker.State; got != breaker.StateClosed {
		t.Errorf("breaker state = %q, want closed", got)
	}
}

func TestPoller_HandlerFailureContained(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events: []rpc.RawEvent{
				rawEvent("evt-1", 1001, domain.TopicCreated),
				rawEvent("evt-2", 1002, domain.TopicBuy),
			},
			LatestLedger: 1002,
		}},
	}, 1000)
	f.handler.failOn["evt-1"] = errors.New("insert failed")

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	// The failure does not stall the stream.
	if got := f.lastLedger(t); got != 1002 {
		t.Errorf("checkpoint = %d, want 1002", got)
	}
	if got := f.batch.size(); got != 2 {
		t.Errorf("journaled = %d, want 2", got)
	}
	if got := f.handler.handledCount(); got != 1 {
		t.Errorf("handled = %d, want 1", got)
	}

	if len(f.dead.entries) != 1 {
		t.Fatalf("dead letter entries = %d, want 1", len(f.dead.entries))
	}
	fe := f.dead.entries[0]
	if fe.EventID != "evt-1" {
		t.Errorf("dead letter event id = %q, want evt-1", fe.EventID)
	}
	if fe.FailureType != domain.FailureTypeHandler {
		t.Errorf("failure type = %q, want handler", fe.FailureType)
	}
	if fe.Status != domain.FailedEventStatusPending {
		t.Errorf("status = %q, want pending", fe.Status)
	}
}

func TestPoller_MalformedPayloadClassifiedAsParsing(t *testing.T) {
	f := newFixture(&mockRPC{
		pages: []rpc.EventsResponse{{
			Events:       []rpc.RawEvent{rawEvent("evt-1", 1001, domain.TopicBuy)},
			LatestLedger: 1001,
		}},
	}, 1000)
	f.handler.failOn["evt-1"] = fmt.Errorf("%w: missing buyer", handlers.ErrMalformedPayload)

	if err := f.poller.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if len(f.dead.entries) != 1 {
		t.Fatalf("dead letter entries = %d, want 1", len(f.dead.entries))
	}
	if got := f.dead.entries[0].FailureType; got != domain.FailureTypeParsing {
		t.Errorf("failure type = %q, want parsing", got)
	}
}

// ===== Lifecycle =====

func TestPoller_StartStop(t *testing.T) {
	f := newFixture(&mockRPC{
		latest: rpc.LatestLedger{Sequence: 2000},
	}, 0)

	ctx := context.Background()
	startErr := make(chan error, 1)
	go func() { startErr <- f.poller.Start(ctx) }()

	time.Sleep(25 * time.Millisecond)

	if err := f.poller.Start(ctx); err == nil {
		t.Error("expected error starting a running poller")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.poller.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if !f.batch.shutdown {
		t.Error("batch processor was not drained on stop")
	}

	st := f.poller.GetStatus(ctx)
	if st.State != StateStopped {
		t.Errorf("state = %q, want stopped", st.State)
	}
	if st.LastLedger != 2000 {
		t.Errorf("last ledger = %d, want 2000", st.LastLedger)
	}
	if st.Contract != testContract {
		t.Errorf("contract = %q, want %q", st.Contract, testContract)
	}
}
