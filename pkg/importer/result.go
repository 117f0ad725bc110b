package importer

import "time"

// Warning kinds counted in Result.Warnings.
const (
	WarnMissingDisplayName = "missing_display_name"
	WarnSchemaDrift        = "schema_drift"
	WarnAttributeRead      = "attribute_read"
)

// Result describes a finished (or aborted) run.
type Result struct {
	RunID                string
	Roots                int
	NodesCreated         int64
	RelationshipsCreated int64
	NodesByLabel         map[string]int64 // keyed by class name
	EdgesByType          map[string]int64
	Warnings             map[string]int64
	Constraints          ConstraintReport
	Duration             time.Duration
}

func newResult(runID string) *Result {
	return &Result{
		RunID:        runID,
		NodesByLabel: make(map[string]int64),
		EdgesByType:  make(map[string]int64),
		Warnings:     make(map[string]int64),
	}
}

// WarningCount returns the total number of warnings.
func (r *Result) WarningCount() int64 {
	var n int64
	for _, c := range r.Warnings {
		n += c
	}
	return n
}
