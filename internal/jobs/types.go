package jobs

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a job in this status will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

const (
	SourceManual = "manual"
	SourceAPI    = "api"
	SourceWatch  = "watch"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one file translation. Zero numeric fields fall back
// to the configured defaults; Start and End are both zero for a whole
// document.
type JobPayload struct {
	InputPath   string `json:"input_path"`
	OutputPath  string `json:"output_path"`
	BatchSize   int    `json:"batch_size,omitempty"`
	ContextSize int    `json:"context_size,omitempty"`
	Threads     int    `json:"threads,omitempty"`
	NoResume    bool   `json:"no_resume,omitempty"`
	Start       int    `json:"start,omitempty"`
	End         int    `json:"end,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	PromptName  string `json:"prompt_name,omitempty"`
}

// DefaultDedupeKey identifies jobs writing the same output.
func (p JobPayload) DefaultDedupeKey() string {
	if p.Start > 0 || p.End > 0 {
		return p.OutputPath + "|" + strconv.Itoa(p.Start) + "-" + strconv.Itoa(p.End)
	}
	return p.OutputPath
}

// Progress counts finished batches of a running job.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type TranslationJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Progress  Progress   `json:"progress"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
