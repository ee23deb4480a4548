package model

import "time"

// RunKind names a batch operation recorded in the run log.
type RunKind string

const (
	RunKindIngest    RunKind = "ingest"
	RunKindEnrich    RunKind = "enrich"
	RunKindAnalyze   RunKind = "analyze"
	RunKindDedup     RunKind = "dedup"
	RunKindReconcile RunKind = "reconcile"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one batch execution as an explicit, resumable unit of work.
// Scheduling is external; the run log is what makes "retry next cycle"
// observable.
type Run struct {
	ID         string         `json:"id"`
	Kind       RunKind        `json:"kind"`
	Status     RunStatus      `json:"status"`
	Counts     map[string]int `json:"counts,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
