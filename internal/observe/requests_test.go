package observe

import (
	"fmt"
	"testing"
)

func TestRecordAndSnapshot(t *testing.T) {
	m := NewInMemoryRequestMetrics()

	m.Record("GET", "/api/v1/experiments", 200, 12.5)
	m.Record("GET", "/api/v1/experiments", 200, 7.5)
	m.Record("POST", "/api/v1/events", 202, 4.0)
	m.Record("GET", "/api/v1/results/abc", 500, 100.0)
	m.Record("GET", "/api/v1/results/abc", 503, -5.0) // clamps to 0

	snap := m.Snapshot()

	if snap.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", snap.TotalRequests)
	}
	if snap.TotalServerErrors != 2 {
		t.Errorf("TotalServerErrors = %d, want 2", snap.TotalServerErrors)
	}
	// (12.5 + 7.5 + 4.0 + 100.0 + 0) / 5 = 24.8
	if snap.AverageDurationMS != 24.8 {
		t.Errorf("AverageDurationMS = %v, want 24.8", snap.AverageDurationMS)
	}
	if snap.StatusCounts[200] != 2 || snap.StatusCounts[500] != 1 {
		t.Errorf("StatusCounts = %v", snap.StatusCounts)
	}
	if snap.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %d", snap.UptimeSeconds)
	}

	if len(snap.TopEndpoints) != 3 {
		t.Fatalf("TopEndpoints = %v", snap.TopEndpoints)
	}
	if snap.TopEndpoints[0].Endpoint != "GET /api/v1/experiments" || snap.TopEndpoints[0].Count != 2 {
		t.Errorf("top endpoint = %+v", snap.TopEndpoints[0])
	}
}

func TestSnapshotEmpty(t *testing.T) {
	snap := NewInMemoryRequestMetrics().Snapshot()

	if snap.TotalRequests != 0 || snap.AverageDurationMS != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}
	if len(snap.TopEndpoints) != 0 {
		t.Errorf("TopEndpoints = %v, want empty", snap.TopEndpoints)
	}
}

func TestTopEndpointsCapAndTieBreak(t *testing.T) {
	m := NewInMemoryRequestMetrics()

	for i := 0; i < 12; i++ {
		m.Record("GET", fmt.Sprintf("/api/v1/experiments/%d", i), 200, 1)
	}
	snap := m.Snapshot()

	if len(snap.TopEndpoints) != 10 {
		t.Fatalf("len(TopEndpoints) = %d, want 10", len(snap.TopEndpoints))
	}
	// All counts tie at 1, so order falls back to the endpoint string.
	if snap.TopEndpoints[0].Endpoint != "GET /api/v1/experiments/0" {
		t.Errorf("first endpoint = %q", snap.TopEndpoints[0].Endpoint)
	}
	if snap.TopEndpoints[1].Endpoint != "GET /api/v1/experiments/1" {
		t.Errorf("second endpoint = %q", snap.TopEndpoints[1].Endpoint)
	}
}

func TestMetricsRegistryHandler(t *testing.T) {
	m := NewMetricsRegistry()

	m.HTTPRequests.WithLabelValues("GET", "/api/v1/experiments", "200").Inc()
	m.HTTPDuration.WithLabelValues("GET", "/api/v1/experiments").Observe(0.01)
	m.InFlight.Inc()
	m.InFlight.Dec()

	if m.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
