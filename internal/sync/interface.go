// Package sync drives the four-step pipeline that mirrors remote work
// items into the local board store.
//
// One run resolves the project's board (step 1), resolves the sprint to
// mirror (step 2), fetches sprint issues (step 3) and backlog issues
// (step 4), normalizes every status label to a board column, merges the
// two sets with sprint membership winning, upserts the merged set, and
// finally prunes remote-origin records the run failed to refresh.
//
// The steps have heterogeneous failure policy: board resolution failing
// is hard and triggers an independent fallback query; a missing sprint is
// soft; fetch errors degrade to empty sets. Whatever was retrieved still
// flows through merge, upsert, and prune, so the local mirror converges
// toward the remote even across partial failures.
package sync

import (
	"context"
	"time"
)

// Sync methods recorded in the run result and in store metadata.
const (
	// MethodPipeline is the four-step board/sprint/backlog pipeline.
	MethodPipeline = "pipeline"

	// MethodFallback is the single filtered-query recovery path taken
	// when board resolution fails.
	MethodFallback = "fallback"
)

// Orchestrator runs one synchronization pass against the remote tracker.
//
// A run mints one epoch, stamps it on every record it writes, and prunes
// remote-origin records with older epochs strictly after all writes have
// completed. Overlapping runs are unsupported: callers serialize
// invocations (the CLI holds a file lock around each run).
type Orchestrator interface {
	// Run executes one synchronization pass.
	//
	// Run returns an error only when no usable output could be produced
	// at all (remote unreachable on both the pipeline and the fallback
	// path, or the store rejecting writes wholesale). Partial failures
	// are reported through Result.Degraded and Result.Warnings instead.
	//
	// Example:
	//
	//	result, err := orchestrator.Run(ctx)
	//	if err != nil {
	//	    return err
	//	}
	//	log.Printf("synced %d tasks (method=%s)", result.Upserted, result.Method)
	Run(ctx context.Context) (*Result, error)
}

// Result reports what one run did.
type Result struct {
	// Epoch is the run's timestamp, stamped on every record written.
	Epoch int64 `json:"epoch"`

	// Method is MethodPipeline or MethodFallback.
	Method string `json:"method"`

	// Board/sprint diagnostics, re-resolved each run.
	BoardID     int    `json:"board_id,omitempty"`
	BoardName   string `json:"board_name,omitempty"`
	SprintID    int    `json:"sprint_id,omitempty"`
	SprintName  string `json:"sprint_name,omitempty"`
	SprintState string `json:"sprint_state,omitempty"`

	// Counts.
	SprintIssues  int   `json:"sprint_issues"`
	BacklogIssues int   `json:"backlog_issues"`
	Merged        int   `json:"merged"`
	Upserted      int   `json:"upserted"`
	Failed        int   `json:"failed"`
	Pruned        int64 `json:"pruned"`

	// Degraded names the steps that failed softly during the run.
	Degraded []string `json:"degraded,omitempty"`

	// Unmapped lists status labels that fell through to the default
	// column, for operator review (kanbo remap).
	Unmapped []string `json:"unmapped,omitempty"`

	// Warnings carries per-item problems that didn't stop the run.
	Warnings []string `json:"warnings,omitempty"`

	// Duration of the whole run.
	Duration time.Duration `json:"duration"`
}

// PartialFailure reports whether the run produced output with one or more
// steps degraded.
func (r *Result) PartialFailure() bool {
	return len(r.Degraded) > 0
}
