package pipeline

import (
	"tunetag/internal/metadata"
	"tunetag/internal/report"
)

// Success is one file that was tagged.
type Success struct {
	Record metadata.Record `json:"record"`
	Path   string          `json:"path"`
}

// Result is what every stage hands back. Its lists keep item order.
type Result struct {
	Successes []Success        `json:"successes"`
	Warnings  []report.Warning `json:"warnings"`
	Failures  []report.Failure `json:"failures"`
}

// Merge appends other to r.
func (r *Result) Merge(other Result) {
	r.Successes = append(r.Successes, other.Successes...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Failures = append(r.Failures, other.Failures...)
}

// Total is the number of items that reached a final state.
func (r Result) Total() int {
	return len(r.Successes) + len(r.Failures)
}

// Failed builds a Result holding a single failure.
func Failed(item string, err error, warnings ...report.Warning) Result {
	return Result{
		Warnings: warnings,
		Failures: []report.Failure{report.FailureFrom(item, err)},
	}
}
