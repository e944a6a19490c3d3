// Package rpc talks to a Soroban RPC endpoint over JSON-RPC 2.0.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client is the chain-facing surface the poller depends on.
type Client interface {
	// GetLatestLedger returns the chain tip.
	GetLatestLedger(ctx context.Context) (LatestLedger, error)

	// GetEvents returns contract events from StartLedger through the tip.
	GetEvents(ctx context.Context, req EventsRequest) (EventsResponse, error)

	// Health probes the endpoint.
	Health(ctx context.Context) error
}

// LatestLedger is the getLatestLedger result.
type LatestLedger struct {
	Sequence uint32 `json:"sequence"`
}

// EventsRequest selects events for a set of contracts.
type EventsRequest struct {
	StartLedger uint32
	ContractIDs []string
	Topics      [][]string
	Limit       int
	Cursor      string
}

// EventsResponse carries the page of events plus the ledger the
// endpoint had ingested when it answered. LatestLedger is what the
// poller checkpoints on an empty page.
type EventsResponse struct {
	Events       []RawEvent `json:"events"`
	LatestLedger uint32     `json:"latestLedger"`
	Cursor       string     `json:"cursor"`
}

// RawEvent is one undecoded contract event.
type RawEvent struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Ledger         uint32          `json:"ledger"`
	LedgerClosedAt time.Time       `json:"ledgerClosedAt"`
	ContractID     string          `json:"contractId"`
	Topic          []string        `json:"topic"`
	Value          json.RawMessage `json:"value"`
	TxHash         string          `json:"txHash"`
}

// RPCError is a JSON-RPC level error from the endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
