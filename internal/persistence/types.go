package persistence

import "time"

// JobEvent is one line of a job's event log.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Batch     int       `json:"batch,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
