package domain

// FailedEvent represents an event whose handler failed after the
// checkpoint moved past it. Stored in the redis dead letter for
// operator inspection; never replayed automatically.
type FailedEvent struct {
	ID          string            `json:"id"`
	EventID     string            `json:"event_id"`
	Contract    string            `json:"contract"`
	Kind        EventKind         `json:"kind"`
	Ledger      uint32            `json:"ledger"`
	Payload     []byte            `json:"payload"`
	ClosedAt    int64             `json:"closed_at"`
	FailureType FailureType       `json:"failure_type"`
	Error       string            `json:"error_msg"`
	RetryCount  int               `json:"retry_count"`
	Status      FailedEventStatus `json:"status"`
	CreatedAt   int64             `json:"created_at"`
}

type FailedEventStatus string

const (
	FailedEventStatusPending  FailedEventStatus = "pending"
	FailedEventStatusResolved FailedEventStatus = "resolved"
	FailedEventStatusIgnored  FailedEventStatus = "ignored"
)

type FailureType string

const (
	FailureTypeRPC      FailureType = "rpc"
	FailureTypeParsing  FailureType = "parsing"
	FailureTypeDatabase FailureType = "database"
	FailureTypeHandler  FailureType = "handler"
)
