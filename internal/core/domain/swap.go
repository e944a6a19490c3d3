package domain

import "time"

// Swap represents one AMM pair swap.
type Swap struct {
	EventID   string
	Pool      string
	Sender    string
	TokenIn   string
	TokenOut  string
	AmountIn  string
	AmountOut string
	Ledger    uint32
	ClosedAt  time.Time
}
