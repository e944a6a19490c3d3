package domain

import "time"

// LiquidityChange represents one add or remove on an AMM pair.
type LiquidityChange struct {
	EventID   string
	Pool      string
	Provider  string
	Direction LiquidityDirection
	Amount0   string
	Amount1   string
	Liquidity string
	Ledger    uint32
	ClosedAt  time.Time
}

type LiquidityDirection string

const (
	LiquidityAdded   LiquidityDirection = "add"
	LiquidityRemoved LiquidityDirection = "remove"
)
