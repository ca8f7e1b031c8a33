package dispatch

import (
	"encoding/json"

	"github.com/google/uuid"
)

// JobPointer is the lightweight queue message handed to delivery workers.
// Workers reload full job state by id, so the queue never carries stale
// payloads.
type JobPointer struct {
	JobID          uuid.UUID `json:"jobId"`
	DispatchPoolID uuid.UUID `json:"dispatchPoolId"`
	MessageGroup   string    `json:"messageGroup"`
}

// Encode serializes the pointer for the queue.
func (p JobPointer) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePointer parses a queue message body into a JobPointer.
func DecodePointer(data []byte) (JobPointer, error) {
	var p JobPointer
	if err := json.Unmarshal(data, &p); err != nil {
		return JobPointer{}, err
	}
	return p, nil
}
