package db

import (
	"time"

	"github.com/google/uuid"
)

// StageType classifies a company stage
type StageType string

// Stage types
const (
	StageTypeHiring     StageType = "hiring"
	StageTypeOnboarding StageType = "onboarding"
	StageTypeCustom     StageType = "custom"
)

// Valid reports whether t is a known stage type
func (t StageType) Valid() bool {
	switch t {
	case StageTypeHiring, StageTypeOnboarding, StageTypeCustom:
		return true
	}
	return false
}

// Stage is one step of a company's pipeline. Only active stages take part in
// next/final computation.
type Stage struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Type      StageType `json:"type"`
	Order     int       `json:"stage_order"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageReferences counts what still points at a stage
type StageReferences struct {
	Applications       int `json:"applications"`
	ActiveApplications int `json:"active_applications"`
	LogEntries         int `json:"log_entries"`
}

// Document is a fillable form a stage may require
type Document struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Path        *string   `json:"path,omitempty"`
	IsFillable  bool      `json:"is_fillable"`
}

// DocumentRequirement links a stage to a document
type DocumentRequirement struct {
	StageID    uuid.UUID `json:"stage_id"`
	DocumentID uuid.UUID `json:"document_id"`
	IsRequired bool      `json:"is_required"`
	Order      int       `json:"document_order"`
}

// StageDocument is a requirement joined with its document
type StageDocument struct {
	Document
	IsRequired bool `json:"is_required"`
	Order      int  `json:"document_order"`
}
