package transition

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/stages"
)

// Labels used when a history entry points at no stage or a deleted one
const (
	LabelInitialStage = "Initial Stage"
	LabelUnknownStage = "Unknown Stage"
	LabelSystemActor  = "System"
)

// HistoryEntry is a transition log entry resolved for display
type HistoryEntry struct {
	ID             uuid.UUID  `json:"id"`
	FromStageID    *uuid.UUID `json:"from_stage_id,omitempty"`
	FromStage      string     `json:"from_stage"`
	ToStageID      uuid.UUID  `json:"to_stage_id"`
	ToStage        string     `json:"to_stage"`
	ChangedByID    uuid.UUID  `json:"changed_by_id"`
	ChangedBy      string     `json:"changed_by"`
	ChangedAt      time.Time  `json:"changed_at"`
	Note           *string    `json:"note,omitempty"`
	IsHireAction   bool       `json:"is_hire_action"`
	IsOnboardStage bool       `json:"is_onboard_stage"`
}

// FinalStageStatus reports where an application stands relative to the end
// of its pipeline
type FinalStageStatus struct {
	ApplicationID     uuid.UUID `json:"application_id"`
	IsFinalStage      bool      `json:"is_final_stage"`
	CurrentStage      *db.Stage `json:"current_stage,omitempty"`
	CurrentStageOrder *int      `json:"current_stage_order,omitempty"`
	FinalStage        *db.Stage `json:"final_stage,omitempty"`
}

func (e *Engine) read(ctx context.Context, fn func(q db.Queries) error) error {
	return e.store.InTx(ctx, fn)
}

func getApplication(ctx context.Context, q db.Queries, id uuid.UUID) (*db.Application, error) {
	app, err := q.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, pipelineerr.NotFound("application", id)
	}
	return app, nil
}

// History returns the application's audit trail ordered by timestamp
func (e *Engine) History(ctx context.Context, applicationID uuid.UUID) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := e.read(ctx, func(q db.Queries) error {
		if _, err := getApplication(ctx, q, applicationID); err != nil {
			return err
		}
		logs, err := q.ListTransitionLogs(ctx, applicationID)
		if err != nil {
			return err
		}

		stageCache := map[uuid.UUID]*db.Stage{}
		stage := func(id uuid.UUID) (*db.Stage, error) {
			if s, ok := stageCache[id]; ok {
				return s, nil
			}
			s, err := q.GetStage(ctx, id)
			if err != nil {
				return nil, err
			}
			stageCache[id] = s
			return s, nil
		}
		actorCache := map[uuid.UUID]string{}
		actor := func(id uuid.UUID) (string, error) {
			if name, ok := actorCache[id]; ok {
				return name, nil
			}
			name := LabelSystemActor
			a, err := q.GetAccount(ctx, id)
			if err != nil {
				return "", err
			}
			if a != nil {
				name = (&db.Candidate{FirstName: a.FirstName, LastName: a.LastName}).FullName()
				if name == "" {
					name = a.Email
				}
			}
			actorCache[id] = name
			return name, nil
		}

		out = make([]HistoryEntry, 0, len(logs))
		for _, l := range logs {
			entry := HistoryEntry{
				ID:          l.ID,
				FromStageID: l.FromStageID,
				FromStage:   LabelInitialStage,
				ToStageID:   l.ToStageID,
				ToStage:     LabelUnknownStage,
				ChangedByID: l.ActorID,
				ChangedAt:   l.Timestamp,
				Note:        l.Note,
			}
			if l.FromStageID != nil {
				entry.FromStage = LabelUnknownStage
				from, err := stage(*l.FromStageID)
				if err != nil {
					return err
				}
				if from != nil {
					entry.FromStage = from.Name
				}
			}
			to, err := stage(l.ToStageID)
			if err != nil {
				return err
			}
			if to != nil {
				entry.ToStage = to.Name
				entry.IsHireAction = stages.IsHireStage(to)
				entry.IsOnboardStage = to.Type == db.StageTypeOnboarding
			}
			if entry.ChangedBy, err = actor(l.ActorID); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinalStageStatus reports whether the application sits on its company's
// final active stage
func (e *Engine) FinalStageStatus(ctx context.Context, applicationID uuid.UUID) (*FinalStageStatus, error) {
	var status *FinalStageStatus
	err := e.read(ctx, func(q db.Queries) error {
		app, err := getApplication(ctx, q, applicationID)
		if err != nil {
			return err
		}
		p, err := stages.Load(ctx, q, app.CompanyID)
		if err != nil {
			return err
		}
		status = &FinalStageStatus{ApplicationID: app.ID, FinalStage: p.Final()}

		cur, err := currentStage(ctx, q, app)
		if err != nil {
			return err
		}
		if cur != nil {
			order := cur.Order
			status.CurrentStage = cur
			status.CurrentStageOrder = &order
			status.IsFinalStage = p.IsFinal(cur.Order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// AvailableStages lists the active stages an application may be moved to
func (e *Engine) AvailableStages(ctx context.Context, applicationID uuid.UUID) ([]db.Stage, error) {
	var out []db.Stage
	err := e.read(ctx, func(q db.Queries) error {
		app, err := getApplication(ctx, q, applicationID)
		if err != nil {
			return err
		}
		p, err := stages.Load(ctx, q, app.CompanyID)
		if err != nil {
			return err
		}
		out = p.Stages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
