package types

import "github.com/jonathan/staffing-pipeline/internal/pipelineerr"

// MaxNoteLength bounds transition and time-tracking notes
const MaxNoteLength = 1000

// ErrorResponse is the body of every failed request. Applied is false for
// every failure except a commit whose outcome is unknown, where it is null.
type ErrorResponse struct {
	Error     pipelineerr.Kind `json:"error"`
	Reason    string           `json:"reason,omitempty"`
	Message   string           `json:"message"`
	Field     string           `json:"field,omitempty"`
	Retryable bool             `json:"retryable"`
	Applied   *bool            `json:"applied"`
}

// EnrollRequest starts a candidate's application at the first stage
type EnrollRequest struct {
	CandidateID string `json:"candidate_id" validate:"required,uuid"`
	JobID       string `json:"job_id" validate:"required,uuid"`
	CompanyID   string `json:"company_id" validate:"required,uuid"`
}

// SetStageRequest moves an application to an explicit stage
type SetStageRequest struct {
	StageID string  `json:"stage_id" validate:"required,uuid"`
	Note    *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// DocumentRequirementRequest attaches a document to a stage by code
type DocumentRequirementRequest struct {
	Code       string `json:"code" validate:"required,max=50"`
	IsRequired bool   `json:"is_required"`
	Order      int    `json:"order" validate:"min=1"`
}

// CreateStageRequest adds a stage to a company pipeline
type CreateStageRequest struct {
	Name      string                       `json:"name" validate:"required,max=100"`
	Type      string                       `json:"type" validate:"required,oneof=hiring onboarding custom"`
	Order     int                          `json:"stage_order" validate:"required,min=1"`
	IsActive  *bool                        `json:"is_active,omitempty"`
	Documents []DocumentRequirementRequest `json:"documents,omitempty" validate:"omitempty,dive"`
}

// UpdateStageRequest partially updates a stage
type UpdateStageRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Type     *string `json:"type,omitempty" validate:"omitempty,oneof=hiring onboarding custom"`
	Order    *int    `json:"stage_order,omitempty" validate:"omitempty,min=1"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// StageDocumentsRequest replaces a stage's document checklist
type StageDocumentsRequest struct {
	Documents []DocumentRequirementRequest `json:"documents" validate:"dive"`
}

// StageOrderRequest assigns one stage a new order
type StageOrderRequest struct {
	ID    string `json:"id" validate:"required,uuid"`
	Order int    `json:"stage_order" validate:"required,min=1"`
}

// ReorderStagesRequest reorders several stages at once
type ReorderStagesRequest struct {
	Stages []StageOrderRequest `json:"stages" validate:"required,min=1,dive"`
}

// IssueLinksRequest issues document links for an application. With no
// document ids, every document of the current stage gets a link.
type IssueLinksRequest struct {
	DocumentIDs []string `json:"document_ids,omitempty" validate:"omitempty,dive,uuid"`
	ExpiryDays  int      `json:"expiry_days,omitempty" validate:"omitempty,min=1,max=30"`
}

// SendLinksRequest issues links and emails them to the candidate
type SendLinksRequest struct {
	DocumentIDs   []string `json:"document_ids,omitempty" validate:"omitempty,dive,uuid"`
	ExpiryDays    int      `json:"expiry_days,omitempty" validate:"omitempty,min=1,max=30"`
	CustomMessage string   `json:"custom_message,omitempty" validate:"max=1000"`
}

// TimeNoteRequest carries the optional note of a pause or stop
type TimeNoteRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}
