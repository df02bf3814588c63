package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("buffer", 150*time.Millisecond)
	pr.ObserveRunDuration(5 * time.Second)
	pr.IncStageResult("buffer", ResultSuccess)
	pr.IncRunOutcome("success")
	pr.ObserveProcessDuration("autoroute", 12*time.Second, true)
	pr.SetWorkerConcurrency(4)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}
