// Package etl drives the fetch-canonicalize-hash-stage-apply pipeline.
// Each job turns a target list into one Summary; the pipeline guarantees
// that an unchanged payload produces no writes.
package etl

import (
	"time"

	"github.com/google/uuid"
)

// Run is the identity of one batch invocation. StartedAt is UTC and anchors
// the date-based selection policies.
type Run struct {
	JobID     string
	Env       string
	RunID     string
	StartedAt time.Time
	DryRun    bool
}

// NewRun stamps a run for the given job. An empty runID gets a generated one.
func NewRun(jobID, env, runID string, dryRun bool) Run {
	if runID == "" {
		runID = uuid.New().String()
	}
	return Run{
		JobID:     jobID,
		Env:       env,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
	}
}

// Summary is the outcome of one job over its target list.
type Summary struct {
	TotalTargets int     `json:"total_targets"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	FailureRate  float64 `json:"failure_rate"`
}

// Finalize computes the failure rate; an empty target list is a clean run.
func (s *Summary) Finalize() {
	if s.TotalTargets == 0 {
		s.FailureRate = 0
		return
	}
	s.FailureRate = float64(s.FailureCount) / float64(s.TotalTargets)
}
