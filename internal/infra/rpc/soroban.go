package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/pumpwatch/internal/ingest/metrics"
)

// SorobanClient implements Client against one Soroban RPC endpoint.
type SorobanClient struct {
	endpoint   string
	httpClient *http.Client

	mu           sync.RWMutex
	totalLatency time.Duration
	successCount int
	failureCount int

	Monitor *EndpointMonitor
}

// NewSorobanClient creates a client for the given endpoint. timeout is
// the per-request ceiling; a timed-out request surfaces as an error to
// the caller (and counts as a breaker failure there).
func NewSorobanClient(endpoint string, timeout time.Duration) *SorobanClient {
	return &SorobanClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Monitor: NewEndpointMonitor(),
	}
}

// GetLatestLedger returns the chain tip.
func (c *SorobanClient) GetLatestLedger(ctx context.Context) (LatestLedger, error) {
	var out LatestLedger
	if err := c.call(ctx, "getLatestLedger", nil, &out); err != nil {
		return LatestLedger{}, err
	}
	return out, nil
}

// GetEvents returns contract events from req.StartLedger through the tip.
func (c *SorobanClient) GetEvents(ctx context.Context, req EventsRequest) (EventsResponse, error) {
	filter := eventFilter{
		Type:        "contract",
		ContractIDs: req.ContractIDs,
		Topics:      req.Topics,
	}
	params := eventsParams{
		Filters: []eventFilter{filter},
	}
	if req.Cursor != "" {
		params.Pagination = &pagination{Limit: req.Limit, Cursor: req.Cursor}
	} else {
		params.StartLedger = req.StartLedger
		if req.Limit > 0 {
			params.Pagination = &pagination{Limit: req.Limit}
		}
	}

	var out EventsResponse
	if err := c.call(ctx, "getEvents", params, &out); err != nil {
		return EventsResponse{}, err
	}
	return out, nil
}

// Health probes the endpoint with a tip request.
func (c *SorobanClient) Health(ctx context.Context) error {
	_, err := c.GetLatestLedger(ctx)
	return err
}

// Close releases idle connections.
func (c *SorobanClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Stats returns aggregate request counters.
func (c *SorobanClient) Stats() (success, failure int, avgLatency time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	avg := time.Duration(0)
	if c.successCount > 0 {
		avg = c.totalLatency / time.Duration(c.successCount)
	}
	return c.successCount, c.failureCount, avg
}

type eventsParams struct {
	StartLedger uint32        `json:"startLedger,omitempty"`
	Filters     []eventFilter `json:"filters"`
	Pagination  *pagination   `json:"pagination,omitempty"`
}

type eventFilter struct {
	Type        string     `json:"type"`
	ContractIDs []string   `json:"contractIds,omitempty"`
	Topics      [][]string `json:"topics,omitempty"`
}

type pagination struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// call runs one JSON-RPC 2.0 request and decodes result into out.
func (c *SorobanClient) call(ctx context.Context, method string, params, out any) (err error) {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()
	defer func() {
		metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
		}
	}()

	if status := c.Monitor.CheckStatus(); status == StatusThrottled {
		return fmt.Errorf("endpoint throttled, retry after: %v", c.Monitor.RetryAfter())
	}

	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		c.Monitor.RecordThrottle(resp.StatusCode, retryAfter)
		c.recordFailure()
		return fmt.Errorf("%s: rate limited (429), retry after: %s", method, retryAfter)
	}
	if resp.StatusCode == http.StatusForbidden {
		c.Monitor.RecordThrottle(resp.StatusCode, "")
		c.recordFailure()
		return fmt.Errorf("%s: blocked (403)", method)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		if c.Monitor.DetectThrottlePattern(string(body)) {
			return fmt.Errorf("%s: throttle detected in response: %s", method, string(body))
		}
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.recordFailure()
		return fmt.Errorf("parse response: %w", err)
	}

	if rpcResp.Error != nil {
		c.recordFailure()
		if c.Monitor.DetectThrottlePattern(rpcResp.Error.Message) {
			return fmt.Errorf("%s: throttle in rpc error: %s", method, rpcResp.Error.Message)
		}
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			c.recordFailure()
			return fmt.Errorf("parse %s result: %w", method, err)
		}
	}

	c.Monitor.RecordRequest(latency)
	c.recordSuccess(latency)
	return nil
}

func (c *SorobanClient) recordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCount++
	c.totalLatency += latency
}

func (c *SorobanClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
}
