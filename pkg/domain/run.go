package domain

import "time"

// RunStatus is the outcome of a single digest cycle
type RunStatus string

// run statuses
const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Run is the audit record of one execution cycle. Runs are append-only,
// created once at the end of a cycle and never mutated.
type Run struct {
	ID             int64
	Timestamp      time.Time
	Status         RunStatus
	ItemsFound     int
	ItemsNew       int
	ItemsIncluded  int
	OutputPath     string
	RuntimeSeconds float64
	ErrorLog       string
}

// RunItem links a run to an item placed in its output. Rank is the 0-based
// position in the final shortlist.
type RunItem struct {
	RunID  int64
	ItemID int64
	Rank   int
	Theme  string

	// joined fields populated by audit queries
	URL   string
	Title string
}
