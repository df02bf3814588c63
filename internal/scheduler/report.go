package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/tilepipe/internal/metrics"
)

// StageCount tallies one stage's outcomes.
type StageCount struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID        string
	Started      time.Time
	Duration     time.Duration
	Tiles        int
	Groups       int
	Bundles      int
	ControlFiles int
	Outcome      string

	mu     sync.Mutex
	stages map[string]*StageCount
}

func newRunReport() *RunReport {
	return &RunReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		stages:  make(map[string]*StageCount),
	}
}

// record tallies a stage result and forwards it to the metrics recorder.
func (r *RunReport) record(rec metrics.Recorder, stage string, result metrics.ResultLabel) {
	rec.IncStageResult(stage, result)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.stages[stage]
	if !ok {
		c = &StageCount{}
		r.stages[stage] = c
	}
	switch result {
	case metrics.ResultSuccess:
		c.Succeeded++
	case metrics.ResultSkipped:
		c.Skipped++
	case metrics.ResultFailed:
		c.Failed++
	}
}

// Stages returns a copy of the per-stage tallies.
func (r *RunReport) Stages() map[string]StageCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StageCount, len(r.stages))
	for k, v := range r.stages {
		out[k] = *v
	}
	return out
}

// FailedCount sums failures across stages.
func (r *RunReport) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.stages {
		n += c.Failed
	}
	return n
}

// finish stamps the duration and final outcome and emits the run metrics.
func (r *RunReport) finish(rec metrics.Recorder, err error) *RunReport {
	r.Duration = time.Since(r.Started)
	switch {
	case err != nil:
		r.Outcome = "failed"
	case r.FailedCount() > 0:
		r.Outcome = "partial"
	default:
		r.Outcome = "success"
	}
	rec.ObserveRunDuration(r.Duration)
	rec.IncRunOutcome(r.Outcome)
	return r
}
