package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, c *Collector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test-worker")

	c.RecordProcessed(5 * time.Millisecond)
	c.RecordProcessed(10 * time.Millisecond)
	c.RecordError("persistence")
	c.RecordError("persistence")
	c.RecordError("analyzer")
	c.AddAlertsGenerated(3)

	processed := findMetric(t, c, "processed_total")
	if processed == nil {
		t.Fatal("processed_total not registered")
	}
	if got := processed.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("processed_total = %v, want 2", got)
	}

	generated := findMetric(t, c, "alerts_generated_total")
	if got := generated.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("alerts_generated_total = %v, want 3", got)
	}

	errs := findMetric(t, c, "errors_total")
	if errs == nil {
		t.Fatal("errors_total not registered")
	}
	kinds := map[string]float64{}
	for _, m := range errs.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "kind" {
				kinds[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if kinds["persistence"] != 2 || kinds["analyzer"] != 1 {
		t.Errorf("errors_total by kind = %v, want persistence=2 analyzer=1", kinds)
	}
}

func TestCollector_IsolatedRegistries(t *testing.T) {
	a := NewCollector("worker-a")
	b := NewCollector("worker-b")

	a.RecordProcessed(time.Millisecond)

	bProcessed := findMetric(t, b, "processed_total")
	if got := bProcessed.GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("worker-b processed_total = %v, want 0 (registries must not be shared)", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test-worker")
	c.RecordProcessed(time.Millisecond)
	c.RecordBufferUtilization(42)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"processed_total", "buffer_utilization_pct", `worker="test-worker"`} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
