package dispatch

import (
	"github.com/google/uuid"
)

// OutcomeStatus labels one item of a batch ingest result.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeError   OutcomeStatus = "ERROR"
)

// ItemOutcome reports the fate of a single ingested event. Failures are data,
// not exceptions: callers receive one outcome per submitted item.
type ItemOutcome struct {
	Index    int           `json:"index"`
	Status   OutcomeStatus `json:"status"`
	EventID  uuid.UUID     `json:"eventId,omitempty"`
	JobCount int           `json:"jobCount"`
	Error    string        `json:"error,omitempty"`
}

// IngestResult is the aggregate outcome of IngestAndDispatch.
type IngestResult struct {
	Outcomes []ItemOutcome
	Jobs     []JobPointer
}

// Failed reports whether any item in the batch was rejected.
func (r IngestResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeError {
			return true
		}
	}
	return false
}

// ClaimOutcome is the result of a claim-gate pass over one pointer.
type ClaimOutcome int

const (
	// ClaimAcquired means the conditional QUEUED to CLAIMED transition won.
	ClaimAcquired ClaimOutcome = iota
	// ClaimGone means the job is terminal, missing, or claimed elsewhere; the
	// pointer should be dropped.
	ClaimGone
	// ClaimDeferred means a gate (budget, ordering, schedule) declined the
	// pointer; it should be retried after a short delay.
	ClaimDeferred
)
