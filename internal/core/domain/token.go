package domain

import "time"

// Token represents a launchpad token tracked off-chain.
type Token struct {
	Address         string
	Creator         string
	Name            string
	Symbol          string
	Status          TokenStatus
	VolumeXLM       string
	XLMRaised       string
	CreatedLedger   uint32
	GraduatedLedger uint32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TokenStatus string

const (
	// TokenStatusBonding is the initial phase: buys and sells go through
	// the factory's bonding curve.
	TokenStatusBonding TokenStatus = "bonding"

	// TokenStatusGraduated means the curve target was reached and
	// liquidity moved to an AMM pair.
	TokenStatusGraduated TokenStatus = "graduated"
)
