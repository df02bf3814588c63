package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	stageDuration     *prom.HistogramVec
	runDuration       prom.Histogram
	stageResults      *prom.CounterVec
	runOutcome        *prom.CounterVec
	processDuration   *prom.HistogramVec
	workerConcurrency prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tilepipe",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual tile stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "tilepipe",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tilepipe",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tilepipe",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.processDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tilepipe",
			Name:      "external_process_duration_seconds",
			Help:      "Duration of external executable invocations",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		}, []string{"exe", "result"})
		pr.workerConcurrency = prom.NewGauge(prom.GaugeOpts{
			Namespace: "tilepipe",
			Name:      "worker_concurrency",
			Help:      "Configured tile worker concurrency for the current run",
		})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome, pr.processDuration, pr.workerConcurrency)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveProcessDuration(exe string, d time.Duration, success bool) {
	if p == nil || p.processDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.processDuration.WithLabelValues(exe, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetWorkerConcurrency(n int) {
	if p == nil || p.workerConcurrency == nil {
		return
	}
	p.workerConcurrency.Set(float64(n))
}
