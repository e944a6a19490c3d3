package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/pumpwatch/internal/core/breaker"
	"github.com/vietddude/pumpwatch/internal/ingest/poller"
)

// StatusSource exposes the current status of every running stream.
type StatusSource interface {
	Statuses(ctx context.Context) []poller.Status
}

// Pinger checks one dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// DeadLetterCounter reports the dead letter queue depth of one stream.
type DeadLetterCounter interface {
	Count(ctx context.Context) (int, error)
}

// Monitor builds the health report from stream statuses and dependency
// checks.
type Monitor struct {
	source      StatusSource
	storage     Pinger
	rpc         Pinger
	redis       Pinger // nil when redis is not configured
	deadLetters map[string]DeadLetterCounter

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. redis may be nil; deadLetters
// maps contract id to its dead letter counter and may be nil or sparse.
func NewMonitor(source StatusSource, storage, rpc, redis Pinger, deadLetters map[string]DeadLetterCounter) *Monitor {
	return &Monitor{
		source:      source,
		storage:     storage,
		rpc:         rpc,
		redis:       redis,
		deadLetters: deadLetters,
	}
}

// CheckHealth builds the report. Results are cached for 10s so probe
// traffic does not multiply storage and RPC checks.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Streams != nil {
		return m.lastReport
	}

	report := Report{
		Status:       StatusHealthy,
		Streams:      make(map[string]StreamHealth),
		Dependencies: make(map[string]string),
	}

	// 1. Dependencies. Storage down means the pipeline cannot make
	// durable progress; that is the one critical dependency.
	if err := m.storage.Health(ctx); err != nil {
		report.Dependencies["storage"] = err.Error()
		report.Status = StatusCritical
	} else {
		report.Dependencies["storage"] = "ok"
	}
	if err := m.rpc.Health(ctx); err != nil {
		report.Dependencies["rpc"] = err.Error()
		report.worsen(StatusDegraded)
	} else {
		report.Dependencies["rpc"] = "ok"
	}
	if m.redis != nil {
		if err := m.redis.Health(ctx); err != nil {
			report.Dependencies["redis"] = err.Error()
			report.worsen(StatusDegraded)
		} else {
			report.Dependencies["redis"] = "ok"
		}
	}

	// 2. Streams.
	for _, st := range m.source.Statuses(ctx) {
		sh := StreamHealth{
			Contract:     st.Contract,
			Status:       StatusHealthy,
			State:        string(st.State),
			LastLedger:   st.LastLedger,
			LatestLedger: st.LatestLedger,
			Lag:          st.Lag,
			Breaker:      string(st.Breaker.State),
			BreakerTrips: st.Breaker.Trips,
			QueuePending: st.Batch.Pending,
			Unknown:      st.Unknown,
		}

		if counter, ok := m.deadLetters[st.Contract]; ok && counter != nil {
			if n, err := counter.Count(ctx); err == nil {
				sh.DeadLetters = n
			}
		}

		if sh.Lag > 100 {
			sh.Status = StatusCritical
		} else if sh.Lag > 30 || st.Breaker.State == breaker.StateOpen || sh.DeadLetters > 0 {
			sh.Status = StatusDegraded
		}

		report.Streams[st.Contract] = sh
		report.worsen(sh.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

// worsen lowers the report status; it never improves it.
func (r *Report) worsen(s SystemStatus) {
	if r.Status == StatusCritical {
		return
	}
	if s == StatusCritical || (s == StatusDegraded && r.Status == StatusHealthy) {
		r.Status = s
	}
}
