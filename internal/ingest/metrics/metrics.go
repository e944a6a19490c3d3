package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks handled events per contract and kind
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_events_processed_total",
			Help: "Total number of events run through handlers",
		},
		[]string{"contract", "kind"},
	)

	// EventsUnknown tracks events whose topic matched no known kind
	EventsUnknown = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_events_unknown_total",
			Help: "Total number of events with unrecognized topics",
		},
		[]string{"contract"},
	)

	// HandlerFailures tracks contained per-event handler errors
	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_handler_failures_total",
			Help: "Total number of events whose handler failed",
		},
		[]string{"contract", "failure_type"},
	)

	// RPCCallsTotal tracks JSON-RPC calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks JSON-RPC failures per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"method"},
	)

	// RPCLatency tracks JSON-RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pumpwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// PollCycles tracks poll loop outcomes per contract
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpwatch_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"contract", "result"},
	)

	// BreakerState tracks circuit state per contract (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"contract"},
	)

	// BreakerTrips tracks lifetime breaker trips per contract
	BreakerTrips = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_breaker_trips",
			Help: "Lifetime number of circuit breaker trips",
		},
		[]string{"contract"},
	)

	// BatchPending tracks events buffered but not yet flushed
	BatchPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_batch_pending_events",
			Help: "Events buffered in the batch processor",
		},
		[]string{"contract"},
	)

	// BatchProcessed tracks events flushed successfully
	BatchProcessed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_batch_processed_events",
			Help: "Events flushed to storage",
		},
		[]string{"contract"},
	)

	// BatchFailed tracks events in failed flushes
	BatchFailed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_batch_failed_events",
			Help: "Events in failed batch flushes",
		},
		[]string{"contract"},
	)

	// BatchFlushes tracks lifetime flush count
	BatchFlushes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_batch_flushes",
			Help: "Lifetime number of batch flushes",
		},
		[]string{"contract"},
	)

	// ChainLatestLedger tracks the latest ledger reported by the RPC node
	ChainLatestLedger = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_chain_latest_ledger",
			Help: "Latest ledger sequence reported by the chain",
		},
		[]string{"contract"},
	)

	// CheckpointLedger tracks the last checkpointed ledger per stream
	CheckpointLedger = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_checkpoint_ledger",
			Help: "Last durably checkpointed ledger sequence",
		},
		[]string{"contract"},
	)

	// CheckpointLag tracks how far the checkpoint trails the chain
	CheckpointLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_checkpoint_lag_ledgers",
			Help: "Ledgers between chain head and checkpoint",
		},
		[]string{"contract"},
	)

	// CheckpointTimeLag tracks event freshness in wall-clock terms
	CheckpointTimeLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_checkpoint_time_lag_seconds",
			Help: "Seconds between now and the last processed event's ledger close time",
		},
		[]string{"contract"},
	)

	// DeadLetterSize tracks failed events parked in the dead letter
	DeadLetterSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpwatch_dead_letter_events",
			Help: "Failed events currently in the dead letter",
		},
		[]string{"contract"},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpwatch_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks row counts of batched writes
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pumpwatch_db_batch_size",
			Help:    "Rows written per batched database operation",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"operation"},
	)
)
