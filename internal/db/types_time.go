package db

import (
	"time"

	"github.com/google/uuid"
)

// SegmentStatus is the state of a time segment
type SegmentStatus string

// Segment states. Completed is terminal.
const (
	SegmentInProgress SegmentStatus = "in_progress"
	SegmentPaused     SegmentStatus = "paused"
	SegmentCompleted  SegmentStatus = "completed"
)

// Job is a unit of billable work assigned to a worker (candidate)
type Job struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID uuid.UUID  `json:"company_id"`
	WorkerID  *uuid.UUID `json:"worker_id,omitempty"`
	ClientID  *uuid.UUID `json:"client_id,omitempty"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// TimeSegment is one (possibly paused) interval of work on a job.
// CumulativeSeconds is authoritative; StartTime is only the start of the
// current running stretch.
type TimeSegment struct {
	ID                uuid.UUID     `json:"id"`
	JobID             uuid.UUID     `json:"job_id"`
	WorkerID          uuid.UUID     `json:"worker_id"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	LastPausedAt      *time.Time    `json:"last_paused_at,omitempty"`
	CumulativeSeconds int64         `json:"cumulative_seconds"`
	TotalSeconds      int64         `json:"total_seconds"`
	Status            SegmentStatus `json:"status"`
	Notes             *string       `json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SegmentFilter selects completed segments by owner and start_time window.
// From is inclusive, To exclusive. Nil bounds are open.
type SegmentFilter struct {
	WorkerID *uuid.UUID
	JobID    *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// Matches reports whether seg passes the filter's owner and window checks
func (f SegmentFilter) Matches(seg *TimeSegment) bool {
	if f.WorkerID != nil && seg.WorkerID != *f.WorkerID {
		return false
	}
	if f.JobID != nil && seg.JobID != *f.JobID {
		return false
	}
	if f.From != nil && seg.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !seg.StartTime.Before(*f.To) {
		return false
	}
	return true
}
