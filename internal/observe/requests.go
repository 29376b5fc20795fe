package observe

import (
	"math"
	"sort"
	"sync"
	"time"
)

// EndpointCount is one row of the top-endpoints ranking.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// RequestMetricsSnapshot is the JSON document served at /ops/requests.
type RequestMetricsSnapshot struct {
	UptimeSeconds     int64           `json:"uptime_seconds"`
	TotalRequests     int64           `json:"total_requests"`
	TotalServerErrors int64           `json:"total_server_errors"`
	AverageDurationMS float64         `json:"average_duration_ms"`
	StatusCounts      map[int]int64   `json:"status_counts"`
	TopEndpoints      []EndpointCount `json:"top_endpoints"`
}

// topEndpointLimit caps the ranking at the handful worth scanning.
const topEndpointLimit = 10

// InMemoryRequestMetrics aggregates request telemetry behind one mutex.
// Recording is O(1); the snapshot pays the sorting cost.
type InMemoryRequestMetrics struct {
	mu sync.Mutex

	startedAt       time.Time
	totalRequests   int64
	totalErrors     int64
	totalDurationMS float64
	statusCounts    map[int]int64
	endpointCounts  map[string]int64
}

// NewInMemoryRequestMetrics creates an empty aggregate anchored at now.
func NewInMemoryRequestMetrics() *InMemoryRequestMetrics {
	return &InMemoryRequestMetrics{
		startedAt:      time.Now().UTC(),
		statusCounts:   make(map[int]int64),
		endpointCounts: make(map[string]int64),
	}
}

// Record folds one served request into the aggregate. Negative durations
// clamp to zero; statuses of 500 and above count as server errors.
func (m *InMemoryRequestMetrics) Record(method, path string, status int, durationMS float64) {
	durationMS = math.Max(0, durationMS)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.totalDurationMS += durationMS
	m.statusCounts[status]++
	m.endpointCounts[method+" "+path]++
	if status >= 500 {
		m.totalErrors++
	}
}

// Snapshot renders the aggregate. Ties in the endpoint ranking break on the
// endpoint string so the order is stable.
func (m *InMemoryRequestMetrics) Snapshot() RequestMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	average := 0.0
	if m.totalRequests > 0 {
		average = math.Round(m.totalDurationMS/float64(m.totalRequests)*100) / 100
	}

	statuses := make(map[int]int64, len(m.statusCounts))
	for status, count := range m.statusCounts {
		statuses[status] = count
	}

	endpoints := make([]EndpointCount, 0, len(m.endpointCounts))
	for endpoint, count := range m.endpointCounts {
		endpoints = append(endpoints, EndpointCount{Endpoint: endpoint, Count: count})
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Count != endpoints[j].Count {
			return endpoints[i].Count > endpoints[j].Count
		}
		return endpoints[i].Endpoint < endpoints[j].Endpoint
	})
	if len(endpoints) > topEndpointLimit {
		endpoints = endpoints[:topEndpointLimit]
	}

	return RequestMetricsSnapshot{
		UptimeSeconds:     int64(time.Since(m.startedAt).Seconds()),
		TotalRequests:     m.totalRequests,
		TotalServerErrors: m.totalErrors,
		AverageDurationMS: average,
		StatusCounts:      statuses,
		TopEndpoints:      endpoints,
	}
}
