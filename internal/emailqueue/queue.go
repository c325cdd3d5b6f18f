// Package emailqueue owns the lifecycle of outbound notification emails:
// enqueue, claim-and-deliver sweeps, statistics and cleanup.
package emailqueue

import "time"

// Status represents the status of a queue entry.
type Status string

// Queue statuses. Processing is the interim claim state of a running sweep;
// sent and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Entry represents one email notification in the queue.
type Entry struct {
	ID           string       `json:"id"`
	Recipient    string       `json:"recipient"`
	Template     Template     `json:"template"`
	Data         TemplateData `json:"template_data"`
	Status       Status       `json:"status"`
	ScheduledFor time.Time    `json:"scheduled_for"`
	Attempts     int          `json:"attempts"`
	LastError    string       `json:"last_error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
}

// Stats contains entry counts by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// ProcessResult summarizes one queue sweep.
type ProcessResult struct {
	// Processed is the number of entries claimed and attempted.
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ListFilter narrows entry listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
