package domain

import "time"

// PassSummary describes the outcome of one scheduler pass.
type PassSummary struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	AsOf       time.Time            `json:"as_of"`
	Kinds      map[Kind]KindSummary `json:"kinds"`
}

// KindSummary counts what happened to the due templates of one kind.
type KindSummary struct {
	Due     int  `json:"due"`
	Posted  int  `json:"posted"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
	ScanErr bool `json:"scan_error,omitempty"`
}

// Totals sums the per-kind counters.
func (s PassSummary) Totals() KindSummary {
	var total KindSummary
	for _, k := range s.Kinds {
		total.Due += k.Due
		total.Posted += k.Posted
		total.Skipped += k.Skipped
		total.Failed += k.Failed
		total.ScanErr = total.ScanErr || k.ScanErr
	}
	return total
}
