// Package health aggregates per-stream status into an HTTP-served report.
package health

// SystemStatus is the coarse health of the service or one stream.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StreamHealth is the health view of one monitored contract.
type StreamHealth struct {
	Contract     string       `json:"contract"`
	Status       SystemStatus `json:"status"`
	State        string       `json:"state"`
	LastLedger   uint32       `json:"last_ledger"`
	LatestLedger uint32       `json:"latest_ledger"`
	Lag          int64        `json:"lag"`
	Breaker      string       `json:"breaker"`
	BreakerTrips uint64       `json:"breaker_trips"`
	QueuePending int          `json:"queue_pending"`
	Unknown      uint64       `json:"unknown_events"`
	DeadLetters  int          `json:"dead_letters"`
}

// Report is the full health report served on /health/detailed.
type Report struct {
	Status       SystemStatus            `json:"status"`
	Streams      map[string]StreamHealth `json:"streams"`
	Dependencies map[string]string       `json:"dependencies"`
}
