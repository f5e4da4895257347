package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorRecordsRunMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveRun("success", 2*time.Second)
	collector.AddPulses(5)
	collector.AddObjects("indicator", 12)
	collector.IncBundles()
	collector.IncError("fetch")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	expectations := []string{
		`connector_alienvault_runs_total{status="success"} 1`,
		`connector_alienvault_pulses_fetched_total 5`,
		`connector_alienvault_stix_objects_total{type="indicator"} 12`,
		`connector_alienvault_bundles_sent_total 1`,
		`connector_alienvault_import_errors_total{stage="fetch"} 1`,
	}
	for _, want := range expectations {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollectorRegistersOnce(t *testing.T) {
	if _, err := NewCollector(); err != nil {
		t.Fatalf("first collector failed: %v", err)
	}
	// Separate registries must not collide.
	if _, err := NewCollector(); err != nil {
		t.Fatalf("second collector failed: %v", err)
	}
}
