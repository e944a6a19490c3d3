package domain

import "time"

// Trade represents one bonding-curve buy or sell, keyed by the chain
// event id so duplicate deliveries collapse to a single row.
type Trade struct {
	EventID     string
	Token       string
	Trader      string
	Side        TradeSide
	XLMAmount   string
	TokenAmount string
	Ledger      uint32
	ClosedAt    time.Time
}

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)
