package domain

import "time"

// Checkpoint is the durable last-processed position of one stream
// (one monitored contract). LastLedger never regresses.
type Checkpoint struct {
	StreamID    string
	LastLedger  uint32
	LastEventID string
	UpdatedAt   time.Time
}
