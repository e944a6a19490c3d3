package domain

import "time"

// Event is one classified contract event, as fed to the batch processor
// and the handlers. Payload stays opaque here; handlers decode it.
type Event struct {
	ID       string
	Ledger   uint32
	Contract string
	Kind     EventKind
	Payload  []byte
	ClosedAt time.Time
}

type EventKind string

const (
	EventKindTokenCreated     EventKind = "token_created"
	EventKindTokensBought     EventKind = "tokens_bought"
	EventKindTokensSold       EventKind = "tokens_sold"
	EventKindTokenGraduated   EventKind = "token_graduated"
	EventKindLiquidityAdded   EventKind = "liquidity_added"
	EventKindLiquidityRemoved EventKind = "liquidity_removed"
	EventKindSwap             EventKind = "swap"
	EventKindUnknown          EventKind = "unknown"
)

// Topic symbols as emitted on chain (first topic of each event).
const (
	TopicCreated          = "created"
	TopicBuy              = "buy"
	TopicSell             = "sell"
	TopicGraduate         = "graduate"
	TopicLiquidityAdded   = "liq_add"
	TopicLiquidityRemoved = "liq_rm"
	TopicSwap             = "swap"
)

var topicToKind = map[string]EventKind{
	TopicCreated:          EventKindTokenCreated,
	TopicBuy:              EventKindTokensBought,
	TopicSell:             EventKindTokensSold,
	TopicGraduate:         EventKindTokenGraduated,
	TopicLiquidityAdded:   EventKindLiquidityAdded,
	TopicLiquidityRemoved: EventKindLiquidityRemoved,
	TopicSwap:             EventKindSwap,
}

// KindFromTopic maps a raw topic symbol to its event kind.
// Unrecognized topics map to EventKindUnknown with ok=false.
func KindFromTopic(topic string) (EventKind, bool) {
	kind, ok := topicToKind[topic]
	if !ok {
		return EventKindUnknown, false
	}
	return kind, true
}
