package types

import (
	"time"

	"github.com/google/uuid"
)

// LoginRequest represents the login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Account represents a login account for API responses.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	CompanyID         uuid.UUID  `json:"company_id"`
	LinkedCandidateID *uuid.UUID `json:"linked_candidate_id,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LoginResponse carries the account and the bearer token that attributes its
// actions in transition logs.
type LoginResponse struct {
	Account   *Account  `json:"account"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate validates the LoginRequest using the validator.
func (r *LoginRequest) Validate() error {
	return Validate(r)
}
