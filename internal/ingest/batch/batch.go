// Package batch buffers classified events and flushes them to storage
// under size, time, and concurrency limits. It is the single point of
// backpressure between event discovery and persistence.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// Sink persists one flushed batch. A batch is delivered in enqueue order.
type Sink func(ctx context.Context, events []domain.Event) error

// Config holds batch processor tuning. Zero values fall back to defaults.
type Config struct {
	// MaxSize is the count-based flush threshold.
	MaxSize int

	// MaxWait bounds how long a pending event can sit before a flush
	// fires regardless of batch size.
	MaxWait time.Duration

	// MaxConcurrency is the number of simultaneous in-flight flushes.
	MaxConcurrency int

	// MaxQueue is the hard cap on buffered, unflushed events. Add
	// signals backpressure once the buffer is at this size.
	MaxQueue int
}

const (
	defaultMaxSize        = 100
	defaultMaxWait        = 5 * time.Second
	defaultMaxConcurrency = 4
	defaultMaxQueue       = 10000
)

// Stats is a snapshot of processor counters. Pending and InFlight count
// events, not batches.
type Stats struct {
	Pending   int
	InFlight  int
	Processed uint64
	Failed    uint64
	Flushes   uint64
}

// Processor implements the bounded event buffer.
type Processor struct {
	cfg  Config
	sink Sink
	pool pond.Pool
	now  func() time.Time

	mu       sync.Mutex
	pending  []domain.Event
	oldestAt time.Time

	inFlight  atomic.Int64
	processed atomic.Uint64
	failed    atomic.Uint64
	flushes   atomic.Uint64

	stopped atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock injects the time source used for the wait threshold.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New creates a Processor and starts its wait-threshold timer.
func New(cfg Config, sink Sink, opts ...Option) *Processor {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}

	p := &Processor{
		cfg:  cfg,
		sink: sink,
		pool: pond.NewPool(cfg.MaxConcurrency, pond.WithQueueSize(cfg.MaxQueue)),
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.runWaitTimer()
	return p
}

// Add buffers one event. It returns false without enqueuing once the
// buffer holds MaxQueue events (or after shutdown); the caller must
// treat that as backpressure and stop feeding for the cycle.
func (p *Processor) Add(event domain.Event) bool {
	if p.stopped.Load() {
		return false
	}

	p.mu.Lock()
	if len(p.pending) >= p.cfg.MaxQueue {
		p.mu.Unlock()
		return false
	}

	if len(p.pending) == 0 {
		p.oldestAt = p.now()
	}
	p.pending = append(p.pending, event)

	var cut []domain.Event
	if len(p.pending) >= p.cfg.MaxSize {
		cut = p.take()
	}
	p.mu.Unlock()

	if cut != nil {
		p.submit(cut)
	}
	return true
}

// Stats returns a snapshot of processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()

	return Stats{
		Pending:   pending,
		InFlight:  int(p.inFlight.Load()),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Flushes:   p.flushes.Load(),
	}
}

// Shutdown stops intake, flushes everything still pending, and waits
// for in-flight flushes to finish. Bounded by ctx.
func (p *Processor) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(p.stop)
	<-p.done

	p.mu.Lock()
	cut := p.take()
	p.mu.Unlock()
	if cut != nil {
		p.submit(cut)
	}

	waited := make(chan struct{})
	go func() {
		p.pool.StopAndWait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// take cuts the whole pending buffer. Caller must hold the mutex.
func (p *Processor) take() []domain.Event {
	if len(p.pending) == 0 {
		return nil
	}
	cut := p.pending
	p.pending = nil
	return cut
}

// submit hands a cut batch to the flush pool.
func (p *Processor) submit(events []domain.Event) {
	p.flushes.Add(1)
	p.inFlight.Add(int64(len(events)))

	p.pool.Submit(func() {
		defer p.inFlight.Add(-int64(len(events)))

		start := time.Now()
		if err := p.sink(context.Background(), events); err != nil {
			p.failed.Add(uint64(len(events)))
			slog.Error("Batch flush failed",
				"size", len(events),
				"duration", time.Since(start),
				"error", err,
			)
			return
		}

		p.processed.Add(uint64(len(events)))
		slog.Debug("Batch flushed",
			"size", len(events),
			"duration", time.Since(start),
		)
	})
}

// runWaitTimer flushes on the time threshold for low-throughput periods.
func (p *Processor) runWaitTimer() {
	defer close(p.done)

	interval := p.cfg.MaxWait / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.flushDue()
		}
	}
}

// flushDue cuts the buffer when the oldest pending event has waited
// past MaxWait.
func (p *Processor) flushDue() {
	p.mu.Lock()
	var cut []domain.Event
	if len(p.pending) > 0 && p.now().Sub(p.oldestAt) >= p.cfg.MaxWait {
		cut = p.take()
	}
	p.mu.Unlock()

	if cut != nil {
		p.submit(cut)
	}
}
