// Package stages resolves and administers a company's ordered pipeline stages.
//
// The catalog is stateless: every lookup reads through the Queries of the
// caller's unit of work, so a transition always sees the configuration
// committed at the time its transaction started.
package stages

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Pipeline is the active, ordered stage list of one company
type Pipeline struct {
	CompanyID uuid.UUID
	Stages    []db.Stage
}

// Load reads a company's active stages and rejects ambiguous ordering
func Load(ctx context.Context, q db.StageQueries, companyID uuid.UUID) (*Pipeline, error) {
	active, err := q.ListActiveStages(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	if err := checkOrdering(companyID, active); err != nil {
		return nil, err
	}
	return &Pipeline{CompanyID: companyID, Stages: active}, nil
}

// checkOrdering fails when two active stages share an order value
func checkOrdering(companyID uuid.UUID, active []db.Stage) error {
	seen := make(map[int]uuid.UUID, len(active))
	for _, s := range active {
		if other, ok := seen[s.Order]; ok {
			return &pipelineerr.ConfigurationError{
				CompanyID: companyID,
				StageID:   s.ID,
				Message:   fmt.Sprintf("active stages %s and %s share order %d", other, s.ID, s.Order),
			}
		}
		seen[s.Order] = s.ID
	}
	return nil
}

// Next returns the lowest-order active stage strictly after order, or nil
func (p *Pipeline) Next(order int) *db.Stage {
	var next *db.Stage
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Order > order && (next == nil || s.Order < next.Order) {
			next = s
		}
	}
	return next
}

// IsFinal reports whether no active stage has an order greater than order
func (p *Pipeline) IsFinal(order int) bool {
	for _, s := range p.Stages {
		if s.Order > order {
			return false
		}
	}
	return true
}

// First returns the lowest-order active stage, or nil for an empty pipeline
func (p *Pipeline) First() *db.Stage {
	if len(p.Stages) == 0 {
		return nil
	}
	first := &p.Stages[0]
	for i := range p.Stages {
		if p.Stages[i].Order < first.Order {
			first = &p.Stages[i]
		}
	}
	return first
}

// Final returns the highest-order active stage, or nil
func (p *Pipeline) Final() *db.Stage {
	var last *db.Stage
	for i := range p.Stages {
		if last == nil || p.Stages[i].Order > last.Order {
			last = &p.Stages[i]
		}
	}
	return last
}

// Find returns the active stage with the given id, or nil
func (p *Pipeline) Find(id uuid.UUID) *db.Stage {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i]
		}
	}
	return nil
}

// NextStage resolves the stage after currentOrder for a company. It returns
// nil when currentOrder is already final.
func NextStage(ctx context.Context, q db.StageQueries, companyID uuid.UUID, currentOrder int) (*db.Stage, error) {
	p, err := Load(ctx, q, companyID)
	if err != nil {
		return nil, err
	}
	return p.Next(currentOrder), nil
}

// IsFinalStage reports whether order is at or past the company's last active stage
func IsFinalStage(ctx context.Context, q db.StageQueries, companyID uuid.UUID, order int) (bool, error) {
	p, err := Load(ctx, q, companyID)
	if err != nil {
		return false, err
	}
	return p.IsFinal(order), nil
}

// FirstStage returns the company's entry stage, or nil when none is active
func FirstStage(ctx context.Context, q db.StageQueries, companyID uuid.UUID) (*db.Stage, error) {
	p, err := Load(ctx, q, companyID)
	if err != nil {
		return nil, err
	}
	return p.First(), nil
}

// IsHireStage reports whether entering s counts as a hire in the audit view:
// onboarding stages and stages named "hired" or "onboarding".
func IsHireStage(s *db.Stage) bool {
	if s == nil {
		return false
	}
	if s.Type == db.StageTypeOnboarding {
		return true
	}
	switch normalizeName(s.Name) {
	case "hired", "onboarding":
		return true
	}
	return false
}
