package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is a login-capable identity. Email is unique.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	CompanyID         uuid.UUID  `json:"company_id"`
	LinkedCandidateID *uuid.UUID `json:"linked_candidate_id,omitempty"`
	PasswordHash      string     `json:"-"` // Never serialize to JSON
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email for uniqueness checks
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CompletionRecord tracks one document for one application
type CompletionRecord struct {
	ID            uuid.UUID  `json:"id"`
	ApplicationID uuid.UUID  `json:"application_id"`
	DocumentID    uuid.UUID  `json:"document_id"`
	FileRef       *string    `json:"file_ref,omitempty"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
