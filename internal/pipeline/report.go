package pipeline

import (
	"time"

	"github.com/mrsinham/rtcurate/internal/ledger"
	"github.com/mrsinham/rtcurate/internal/outcome"
)

// Run-level warnings.
const (
	WarnNoInput          = "input directory holds no files"
	WarnAllUnreadable    = "every input file was unreadable"
	WarnNoApprovedPlan   = "RT timepoints found but none had an approved curative plan"
	WarnCollisionRenames = "existing output objects were renamed to make room"
)

// Report is the result of one run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	InputDir   string
	OutputDir  string

	Files      int
	Unreadable []string
	Series     int
	// Timepoints counts the RT timepoints that went through resolution.
	Timepoints int
	Outcomes   []outcome.Outcome
	// Volumes are the converted volumes in the output tree, queued for
	// classification.
	Volumes    []string
	Collisions int64
	Warnings   []string
}

// Summary counts outcomes per kind.
func (r Report) Summary() map[outcome.Kind]int {
	counts := map[outcome.Kind]int{}
	for _, o := range r.Outcomes {
		counts[o.Kind]++
	}
	return counts
}

// Failed returns the outcomes carrying an error.
func (r Report) Failed() []outcome.Outcome {
	var out []outcome.Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// LedgerRun converts the report into its ledger row.
func (r Report) LedgerRun() ledger.Run {
	return ledger.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		InputDir:   r.InputDir,
		OutputDir:  r.OutputDir,
		Files:      r.Files,
		Unreadable: len(r.Unreadable),
		Collisions: int(r.Collisions),
		Warnings:   r.Warnings,
		Outcomes:   r.Outcomes,
		Volumes:    r.Volumes,
	}
}

// warnings derives the run-level warnings of a finished report.
func (r *Report) warnings() []string {
	var w []string
	switch {
	case r.Files == 0:
		w = append(w, WarnNoInput)
	case len(r.Unreadable) == r.Files:
		w = append(w, WarnAllUnreadable)
	}
	if r.Timepoints > 0 && outcome.Count(r.Outcomes, outcome.CTOnlyFallback) == r.Timepoints {
		w = append(w, WarnNoApprovedPlan)
	}
	if r.Collisions > 0 {
		w = append(w, WarnCollisionRenames)
	}
	return w
}
