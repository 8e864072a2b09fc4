package workflow

import (
	"strconv"
	"time"
)

type RecordStatus string

const (
	RecordStatusApplied    RecordStatus = "applied"
	RecordStatusWouldApply RecordStatus = "would_apply"
	RecordStatusSkipped    RecordStatus = "skipped"
	RecordStatusFailed     RecordStatus = "failed"
)

// RecordResult is the outcome for one record touched by a maintenance run.
type RecordResult struct {
	Id     string       `json:"id"`
	Status RecordStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// BatchReport aggregates RecordResults for one run; failures are data, not panics.
type BatchReport struct {
	Operation  string         `json:"operation"`
	AccountId  string         `json:"account_id"`
	RunId      string         `json:"run_id"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Applied    int            `json:"applied"`
	WouldApply int            `json:"would_apply"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Results    []RecordResult `json:"results"`
}

func NewBatchReport(operation string, accountId string, runId string, dryRun bool) *BatchReport {
	return &BatchReport{
		Operation: operation,
		AccountId: accountId,
		RunId:     runId,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
		Results:   []RecordResult{},
	}
}

func (r *BatchReport) Add(res RecordResult) {
	switch res.Status {
	case RecordStatusApplied:
		r.Applied++
	case RecordStatusWouldApply:
		r.WouldApply++
	case RecordStatusSkipped:
		r.Skipped++
	case RecordStatusFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Changed records a change that was applied, or would have been in a dry run.
func (r *BatchReport) Changed(id string, reason string) {
	status := RecordStatusApplied
	if r.DryRun {
		status = RecordStatusWouldApply
	}
	r.Add(RecordResult{Id: id, Status: status, Reason: reason})
}

func (r *BatchReport) Skip(id string, reason string) {
	r.Add(RecordResult{Id: id, Status: RecordStatusSkipped, Reason: reason})
}

func (r *BatchReport) Fail(id string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.Add(RecordResult{Id: id, Status: RecordStatusFailed, Reason: reason})
}

func (r *BatchReport) HasFailures() bool {
	return r.Failed > 0
}

func (r *BatchReport) Finish() {
	r.FinishedAt = time.Now().UTC()
}

func intId(id int) string {
	return strconv.Itoa(id)
}
