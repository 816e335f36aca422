package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	InitWith(prometheus.NewRegistry())

	SetQueueDepth("days", 3)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("days")); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}

	SetLaneBusy("sensors", true)
	if got := testutil.ToFloat64(laneBusy.WithLabelValues("sensors")); got != 1 {
		t.Errorf("lane busy = %v, want 1", got)
	}
	SetLaneBusy("sensors", false)
	if got := testutil.ToFloat64(laneBusy.WithLabelValues("sensors")); got != 0 {
		t.Errorf("lane busy = %v, want 0", got)
	}

	ObserveRun("days", ResultError, 2*time.Second)
	ObserveRun("days", ResultError, time.Second)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("days", ResultError)); got != 2 {
		t.Errorf("runs = %v, want 2", got)
	}

	IncItemFailure("days", "fetch")
	if got := testutil.ToFloat64(itemFailures.WithLabelValues("days", "fetch")); got != 1 {
		t.Errorf("item failures = %v, want 1", got)
	}

	AddDocuments("history", 4)
	AddDocuments("history", 0)
	if got := testutil.ToFloat64(documents.WithLabelValues("history")); got != 4 {
		t.Errorf("documents = %v, want 4", got)
	}
}
