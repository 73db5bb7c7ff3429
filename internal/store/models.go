package store

import "time"

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is the persisted view of a render job. The live pipeline state lives
// in the render package; this record is what survives restarts and backs
// the HTTP status endpoints.
type Job struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Phase      string    `json:"phase"`
	Progress   int       `json:"progress"`
	OutputPath string    `json:"output_path,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	Error      string    `json:"error,omitempty"`
	Transcoded bool      `json:"transcoded"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
