// Package poller drives one contract stream: fetch new events over
// RPC, classify them, journal them through the batch processor, apply
// handlers, and advance the checkpoint. One poller per contract, one
// goroutine per poller; everything within a stream is serial.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/breaker"
	"github.com/vietddude/pumpwatch/internal/core/checkpoint"
	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/ingest/batch"
	"github.com/vietddude/pumpwatch/internal/ingest/metrics"
	"github.com/vietddude/pumpwatch/internal/infra/rpc"
)

// State is the poller lifecycle phase.
type State string

const (
	StateStarting State = "starting"
	StatePolling  State = "polling"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// Batcher is the journal feed. Add reports false when the queue is full.
type Batcher interface {
	Add(evt domain.Event) bool
	Stats() batch.Stats
	Shutdown(ctx context.Context) error
}

// EventHandler applies one classified event.
type EventHandler interface {
	Handle(ctx context.Context, evt domain.Event) error
}

// Config holds the wiring for one contract stream.
type Config struct {
	Contract    domain.Contract
	Client      rpc.Client
	Breaker     *breaker.Breaker
	Checkpoints checkpoint.Manager
	Batch       Batcher
	Handlers    EventHandler

	// DeadLetter is optional; without it, failed events are only logged
	// and counted.
	DeadLetter *Recorder

	// PollInterval paces the loop. Defaults to 30s.
	PollInterval time.Duration

	// PageLimit caps events per getEvents page. Defaults to 100.
	PageLimit int

	// StartLedger fixes the cold-start position. Zero means start from
	// the chain tip. A stored checkpoint always wins over either.
	StartLedger uint32
}

// Poller runs the poll loop for one contract stream.
type Poller struct {
	cfg Config

	running  atomic.Bool
	state    atomic.Value // State
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	latestSeen   atomic.Uint32
	unknownCount atomic.Uint64
}

// Status is a point-in-time view of one stream.
type Status struct {
	Contract     string
	State        State
	LastLedger   uint32
	LatestLedger uint32
	Lag          int64
	Unknown      uint64
	Breaker      breaker.Stats
	Batch        batch.Stats
}

// New creates a poller. Call Start to begin polling.
func New(cfg Config) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}

	p := &Poller{
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	p.state.Store(StateStarting)
	return p
}

// Start runs the poll loop until Stop or context cancellation. The
// first cycle runs immediately; the ticker paces the rest.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)
	defer close(p.done)

	slog.Info("Starting poller",
		"contract", p.cfg.Contract.ID,
		"name", p.cfg.Contract.Name,
		"interval", p.cfg.PollInterval,
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.state.Store(StatePolling)
	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// Stop halts the loop, waits for the in-flight cycle to finish, then
// drains the batch processor.
func (p *Poller) Stop(ctx context.Context) error {
	p.state.Store(StateDraining)
	p.stopOnce.Do(func() { close(p.stop) })

	if p.running.Load() {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := p.cfg.Batch.Shutdown(ctx)
	p.state.Store(StateStopped)
	if err != nil {
		return fmt.Errorf("drain batch: %w", err)
	}

	slog.Info("Poller stopped", "contract", p.cfg.Contract.ID)
	return nil
}

// GetStatus returns the current stream status.
func (p *Poller) GetStatus(ctx context.Context) Status {
	last, _, _ := p.cfg.Checkpoints.LastLedger(ctx, p.cfg.Contract.ID)
	latest := p.latestSeen.Load()

	lag := int64(0)
	if latest > 0 {
		lag = int64(latest) - int64(last)
	}

	return Status{
		Contract:     p.cfg.Contract.ID,
		State:        p.state.Load().(State),
		LastLedger:   last,
		LatestLedger: latest,
		Lag:          lag,
		Unknown:      p.unknownCount.Load(),
		Breaker:      p.cfg.Breaker.Stats(),
		Batch:        p.cfg.Batch.Stats(),
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	if err := p.pollOnce(ctx); err != nil {
		slog.Error("Poll cycle failed",
			"contract", p.cfg.Contract.ID,
			"error", err,
		)
	}
}

// pollOnce executes one cycle: fetch the window since the checkpoint,
// classify, journal, apply, and advance the checkpoint exactly once.
func (p *Poller) pollOnce(ctx context.Context) error {
	// 1. Resolve the window start.
	start, err := p.resolveStart(ctx)
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "breaker_open").Inc()
			return nil
		}
		metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "start_error").Inc()
		return err
	}

	req := rpc.EventsRequest{
		StartLedger: start,
		ContractIDs: []string{p.cfg.Contract.ID},
		Limit:       p.cfg.PageLimit,
	}

	var (
		lastAccepted *domain.Event
		latest       uint32
		truncated    bool
	)

	for {
		// 2. Fetch one page through the breaker.
		var resp rpc.EventsResponse
		callErr := p.cfg.Breaker.Call(func() error {
			var err error
			resp, err = p.cfg.Client.GetEvents(ctx, req)
			return err
		})
		if callErr != nil {
			// Keep the prefix that was already journaled and applied.
			if lastAccepted != nil {
				if err := p.advance(ctx, lastAccepted.Ledger, lastAccepted.ID, latest); err != nil {
					return err
				}
			}
			if errors.Is(callErr, breaker.ErrOpen) {
				metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "breaker_open").Inc()
				slog.Debug("Poll skipped, breaker open", "contract", p.cfg.Contract.ID)
				return nil
			}
			metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "rpc_error").Inc()
			return fmt.Errorf("get events: %w", callErr)
		}

		latest = resp.LatestLedger
		p.latestSeen.Store(latest)

		// 3. Classify, journal, apply.
		for _, raw := range resp.Events {
			evt := p.classify(raw)
			if !p.cfg.Batch.Add(evt) {
				// Queue full. The rest of the window waits for the
				// next cycle; the checkpoint only covers what was
				// accepted.
				truncated = true
				slog.Warn("Batch queue full, deferring rest of window",
					"contract", p.cfg.Contract.ID,
					"from_event", evt.ID,
				)
				break
			}
			lastAccepted = &evt
			p.dispatch(ctx, evt)
		}

		if truncated || resp.Cursor == "" || len(resp.Events) == 0 {
			break
		}
		req = rpc.EventsRequest{
			ContractIDs: []string{p.cfg.Contract.ID},
			Limit:       p.cfg.PageLimit,
			Cursor:      resp.Cursor,
		}
	}

	if lastAccepted != nil {
		metrics.CheckpointTimeLag.WithLabelValues(p.cfg.Contract.ID).
			Set(time.Since(lastAccepted.ClosedAt).Seconds())
	}

	// 4. Advance the checkpoint: through the full window on success,
	// only through the accepted prefix when backpressure cut it short.
	if truncated {
		if lastAccepted == nil {
			metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "backpressure").Inc()
			return nil
		}
		if err := p.advance(ctx, lastAccepted.Ledger, lastAccepted.ID, latest); err != nil {
			return err
		}
		metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "backpressure").Inc()
		return nil
	}

	if latest > 0 {
		eventID := ""
		if lastAccepted != nil {
			eventID = lastAccepted.ID
		}
		if err := p.advance(ctx, latest, eventID, latest); err != nil {
			return err
		}
	}

	metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "ok").Inc()
	return nil
}

// resolveStart picks the first ledger of this cycle's window: one past
// the checkpoint when there is one, otherwise the configured start or
// the chain tip.
func (p *Poller) resolveStart(ctx context.Context) (uint32, error) {
	last, ok, err := p.cfg.Checkpoints.LastLedger(ctx, p.cfg.Contract.ID)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok {
		return last + 1, nil
	}

	if p.cfg.StartLedger > 0 {
		return p.cfg.StartLedger, nil
	}

	var tip rpc.LatestLedger
	err = p.cfg.Breaker.Call(func() error {
		var callErr error
		tip, callErr = p.cfg.Client.GetLatestLedger(ctx)
		return callErr
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return 0, err
		}
		return 0, fmt.Errorf("get latest ledger: %w", err)
	}
	return tip.Sequence, nil
}

// classify maps a raw event to its kind. Unknown topics are kept (they
// still get journaled) but never dispatched.
func (p *Poller) classify(raw rpc.RawEvent) domain.Event {
	topic := ""
	if len(raw.Topic) > 0 {
		topic = raw.Topic[0]
	}

	kind, known := domain.KindFromTopic(topic)
	if !known {
		p.unknownCount.Add(1)
		metrics.EventsUnknown.WithLabelValues(p.cfg.Contract.ID).Inc()
		slog.Warn("Unknown event topic",
			"contract", p.cfg.Contract.ID,
			"topic", topic,
			"event_id", raw.ID,
		)
	}

	contract := raw.ContractID
	if contract == "" {
		contract = p.cfg.Contract.ID
	}

	return domain.Event{
		ID:       raw.ID,
		Ledger:   raw.Ledger,
		Contract: contract,
		Kind:     kind,
		Payload:  raw.Value,
		ClosedAt: raw.LedgerClosedAt,
	}
}

// dispatch runs the handler for one event. Handler errors are contained
// here: logged, counted, dead-lettered, and never allowed to stall the
// stream.
func (p *Poller) dispatch(ctx context.Context, evt domain.Event) {
	if evt.Kind == domain.EventKindUnknown {
		return
	}

	if err := p.cfg.Handlers.Handle(ctx, evt); err != nil {
		ftype := ClassifyFailure(err)
		metrics.HandlerFailures.WithLabelValues(p.cfg.Contract.ID, string(ftype)).Inc()
		slog.Error("Handler failed",
			"contract", p.cfg.Contract.ID,
			"event_id", evt.ID,
			"kind", evt.Kind,
			"error", err,
		)
		if p.cfg.DeadLetter != nil {
			p.cfg.DeadLetter.Record(ctx, evt, err)
		}
		return
	}

	metrics.EventsProcessed.WithLabelValues(p.cfg.Contract.ID, string(evt.Kind)).Inc()
}

func (p *Poller) advance(ctx context.Context, ledger uint32, eventID string, latest uint32) error {
	if err := p.cfg.Checkpoints.Advance(ctx, p.cfg.Contract.ID, ledger, eventID); err != nil {
		metrics.PollCycles.WithLabelValues(p.cfg.Contract.ID, "checkpoint_error").Inc()
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	metrics.CheckpointLedger.WithLabelValues(p.cfg.Contract.ID).Set(float64(ledger))
	if latest > 0 {
		metrics.ChainLatestLedger.WithLabelValues(p.cfg.Contract.ID).Set(float64(latest))
		metrics.CheckpointLag.WithLabelValues(p.cfg.Contract.ID).Set(float64(int64(latest) - int64(ledger)))
	}
	return nil
}
