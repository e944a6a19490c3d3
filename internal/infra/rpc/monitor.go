package rpc

import (
	"strings"
	"sync"
	"time"
)

// EndpointStatus represents the health state of the endpoint.
type EndpointStatus int

const (
	StatusHealthy   EndpointStatus = iota // responding normally
	StatusDegraded                        // slow but working
	StatusThrottled                       // rate limiting us
	StatusBlocked                         // refusing this client
)

func (s EndpointStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for the endpoint.
type MonitorStats struct {
	Status           EndpointStatus
	AverageLatency   time.Duration
	ThrottleCount429 int
	ThrottleCount403 int
	RequestsLastHour int
}

// EndpointMonitor tracks endpoint health and rate limiting.
type EndpointMonitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Error tracking
	status429Count     int
	status403Count     int
	throttlePatterns   []string
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	// Request timestamps for the 1h window
	requestTimestamps []time.Time

	slowResponseThreshold time.Duration
}

// NewEndpointMonitor creates a monitor with default settings.
func NewEndpointMonitor() *EndpointMonitor {
	return &EndpointMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"daily request count exceeded",
			"project rate limit",
		},
		slowResponseThreshold: 3 * time.Second,
	}
}

// RecordRequest records a successful request with its latency.
func (m *EndpointMonitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)

	cutoff := now.Add(-time.Hour)
	filtered := m.requestTimestamps[:0]
	for _, t := range m.requestTimestamps {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	m.requestTimestamps = filtered
}

// RecordThrottle records a rate limiting or blocking response.
func (m *EndpointMonitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = time.Now()

	switch statusCode {
	case 429:
		m.status429Count++
		m.retryAfterDuration = time.Minute
		if retryAfter != "" {
			if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
				m.retryAfterDuration = d
			}
		}
	case 403:
		m.status403Count++
		m.retryAfterDuration = 10 * time.Minute
	}
}

// DetectThrottlePattern checks if a message reads like a rate limit.
func (m *EndpointMonitor) DetectThrottlePattern(message string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowerMsg := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckStatus returns the current status of the endpoint.
func (m *EndpointMonitor) CheckStatus() EndpointStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.status403Count > 0 && time.Since(m.lastThrottleTime) < m.retryAfterDuration {
		return StatusBlocked
	}
	if m.status429Count > 5 && time.Since(m.lastThrottleTime) < m.retryAfterDuration {
		return StatusThrottled
	}

	if len(m.recentLatencies) > 10 {
		var total time.Duration
		for _, lat := range m.recentLatencies {
			total += lat
		}
		if total/time.Duration(len(m.recentLatencies)) > m.slowResponseThreshold {
			return StatusDegraded
		}
	}

	return StatusHealthy
}

// RetryAfter returns remaining time before retry is allowed.
func (m *EndpointMonitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.retryAfterDuration > 0 {
		remaining := m.retryAfterDuration - time.Since(m.lastThrottleTime)
		if remaining > 0 {
			return remaining
		}
	}
	return 0
}

// AverageLatency returns the average latency of recent requests.
func (m *EndpointMonitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// GetStats returns current monitoring statistics.
func (m *EndpointMonitor) GetStats() MonitorStats {
	status := m.CheckStatus()
	avgLatency := m.AverageLatency()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:           status,
		AverageLatency:   avgLatency,
		ThrottleCount429: m.status429Count,
		ThrottleCount403: m.status403Count,
		RequestsLastHour: len(m.requestTimestamps),
	}
}
