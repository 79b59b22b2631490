package db

import (
	"time"

	"github.com/google/uuid"
)

// Application status values
const (
	ApplicationStatusActive   = "Active"
	ApplicationStatusRejected = "Rejected"
	ApplicationStatusHired    = "Hired"
)

// Candidate is the person behind an application
type Candidate struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins first and last name
func (c *Candidate) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Application is a candidate's progress through one job's pipeline.
// CurrentStageID is nil until the first transition.
type Application struct {
	ID             uuid.UUID  `json:"id"`
	CandidateID    uuid.UUID  `json:"candidate_id"`
	JobID          uuid.UUID  `json:"job_id"`
	CompanyID      uuid.UUID  `json:"company_id"`
	CurrentStageID *uuid.UUID `json:"current_stage_id,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TransitionLogEntry is an immutable audit record of a stage change
type TransitionLogEntry struct {
	ID            uuid.UUID  `json:"id"`
	ApplicationID uuid.UUID  `json:"application_id"`
	FromStageID   *uuid.UUID `json:"from_stage_id"`
	ToStageID     uuid.UUID  `json:"to_stage_id"`
	ActorID       uuid.UUID  `json:"actor_id"`
	Timestamp     time.Time  `json:"timestamp"`
	Note          *string    `json:"note,omitempty"`
}
