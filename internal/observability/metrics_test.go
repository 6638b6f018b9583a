package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveClassification(1, "file_operations", time.Millisecond)
	m.ObserveTransition("bash", "running")
	m.ObserveExecution("bash", time.Second)
	m.ObserveDecision("always", "auto")
	m.ObserveTrustGrant()
	m.SetBufferedEvents(3)
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
}

func TestMetrics_CountsClassifications(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveClassification(1, "file_operations", time.Millisecond)
	m.ObserveClassification(1, "file_operations", time.Millisecond)
	m.ObserveClassification(2, "code_analysis", time.Millisecond)

	if got := testutil.ToFloat64(m.Classifications.WithLabelValues("1", "file_operations")); got != 2 {
		t.Errorf("layer 1 file_operations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Classifications.WithLabelValues("2", "code_analysis")); got != 1 {
		t.Errorf("layer 2 code_analysis = %v, want 1", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	// Two instances on separate registries must not panic on duplicate registration.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.ObserveTrustGrant()
	if got := testutil.ToFloat64(b.TrustGrants); got != 0 {
		t.Errorf("registry b saw %v grants, want 0", got)
	}
}
