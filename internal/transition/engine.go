// Package transition moves candidate applications through their company's
// stage pipeline. Every move runs in one unit of work that locks the
// application row, updates the stage pointer, appends the audit log and
// applies the account side effects, or does none of it.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/accounts"
	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/stages"
)

// MaxNoteLength bounds the free-text note of a manual stage change
const MaxNoteLength = 1000

// Outcome messages
const (
	MsgAdvanced          = "Moved to next stage"
	MsgStageUpdated      = "Stage updated successfully"
	MsgStageUnchanged    = "Application is already at this stage"
	MsgEnrolled          = "Application created at first stage"
	MsgHiredCreated      = "Candidate moved to final stage and user account created"
	MsgHiredExisting     = "Candidate moved to final stage (user account already exists)"
	MsgAccountDeactivate = "Stage updated and user account automatically deactivated"
)

// Outcome describes a committed transition
type Outcome struct {
	ApplicationID   uuid.UUID  `json:"application_id"`
	FromStageID     *uuid.UUID `json:"from_stage_id,omitempty"`
	NewStageID      uuid.UUID  `json:"new_stage_id"`
	NewStageName    string     `json:"new_stage_name"`
	Changed         bool       `json:"changed"`
	IsFinalStage    bool       `json:"is_final_stage"`
	UserCreated     bool       `json:"user_created,omitempty"`
	UserStatus      string     `json:"user_status,omitempty"`
	UserReactivated bool       `json:"user_reactivated,omitempty"`
	UserDeactivated bool       `json:"user_deactivated,omitempty"`
	AccountID       *uuid.UUID `json:"account_id,omitempty"`
	WelcomeSent     bool       `json:"welcome_sent,omitempty"`
	Message         string     `json:"message"`

	welcome *accounts.Welcome
}

// Engine is the stage transition state machine
type Engine struct {
	store    db.Store
	accounts *accounts.Provisioner
	now      func() time.Time
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock overrides the clock used for log timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a transition engine
func NewEngine(store db.Store, provisioner *accounts.Provisioner, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		accounts: provisioner,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func requireActor(actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return &pipelineerr.ValidationError{Field: "actor_id", Message: "is required"}
	}
	return nil
}

// run executes fn in a unit of work and handles everything that must happen
// after the outcome is known: welcome delivery and anomaly logging.
func (e *Engine) run(ctx context.Context, op string, fn func(q db.Queries) (*Outcome, error)) (*Outcome, error) {
	var out *Outcome
	err := e.store.InTx(ctx, func(q db.Queries) error {
		var err error
		out, err = fn(q)
		return err
	})
	if err != nil {
		if pipelineerr.KindOf(err) == pipelineerr.KindCommitUncertain {
			log.Printf("[anomaly] %s: commit outcome unknown, state may be partially applied: %v", op, err)
		}
		return nil, err
	}

	if out.welcome != nil {
		out.WelcomeSent = e.accounts.DeliverWelcome(ctx, out.welcome)
		out.welcome = nil
	}
	return out, nil
}

func lockApplication(ctx context.Context, q db.Queries, id uuid.UUID) (*db.Application, error) {
	app, err := q.LockApplicationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, pipelineerr.NotFound("application", id)
	}
	return app, nil
}

// currentStage loads the application's current stage, or nil when unset
func currentStage(ctx context.Context, q db.Queries, app *db.Application) (*db.Stage, error) {
	if app.CurrentStageID == nil {
		return nil, nil
	}
	stage, err := q.GetStage(ctx, *app.CurrentStageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, &pipelineerr.ConfigurationError{
			CompanyID: app.CompanyID,
			StageID:   *app.CurrentStageID,
			Message:   "current stage not found",
		}
	}
	if stage.CompanyID != app.CompanyID {
		return nil, &pipelineerr.ConfigurationError{
			CompanyID: app.CompanyID,
			StageID:   stage.ID,
			Message:   "current stage belongs to another company",
		}
	}
	return stage, nil
}

// move writes the stage pointer and the audit entry
func (e *Engine) move(ctx context.Context, q db.Queries, app *db.Application, to *db.Stage, actorID uuid.UUID, note *string) error {
	if err := q.UpdateApplicationStage(ctx, app.ID, to.ID); err != nil {
		return err
	}
	entry := &db.TransitionLogEntry{
		ApplicationID: app.ID,
		FromStageID:   app.CurrentStageID,
		ToStageID:     to.ID,
		ActorID:       actorID,
		Timestamp:     e.now(),
		Note:          note,
	}
	if err := q.AppendTransitionLog(ctx, entry); err != nil {
		return err
	}
	log.Printf("[transition] application %s moved to stage %s by %s", app.ID, to.ID, actorID)
	return nil
}

// hire runs the account side effect of entering the final stage. An account
// conflict is absorbed into the outcome; any other error aborts.
func (e *Engine) hire(ctx context.Context, q db.Queries, app *db.Application, out *Outcome) error {
	res, err := e.accounts.Hire(ctx, q, app)
	if err != nil {
		var conflict *pipelineerr.AccountConflictError
		if errors.As(err, &conflict) {
			log.Printf("[transition] account already exists for application %s, continuing", app.ID)
			out.UserStatus = string(accounts.OutcomeAlreadyExists)
			out.Message = MsgHiredExisting
			return nil
		}
		return fmt.Errorf("failed to provision account: %w", err)
	}

	id := res.Account.ID
	out.AccountID = &id
	switch res.Outcome {
	case accounts.OutcomeCreated:
		out.UserCreated = true
		out.Message = MsgHiredCreated
		out.welcome = res.Welcome
	case accounts.OutcomeAlreadyExists:
		out.UserStatus = string(accounts.OutcomeAlreadyExists)
		out.UserReactivated = res.Reactivated
		out.Message = MsgHiredExisting
	}
	return nil
}

// Enroll creates an application at the company's first active stage
func (e *Engine) Enroll(ctx context.Context, candidateID, jobID, companyID, actorID uuid.UUID) (*db.Application, *Outcome, error) {
	if err := requireActor(actorID); err != nil {
		return nil, nil, err
	}

	var app *db.Application
	out, err := e.run(ctx, "enroll", func(q db.Queries) (*Outcome, error) {
		candidate, err := q.GetCandidate(ctx, candidateID)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, pipelineerr.NotFound("candidate", candidateID)
		}

		p, err := stages.Load(ctx, q, companyID)
		if err != nil {
			return nil, err
		}
		first := p.First()
		if first == nil {
			return nil, &pipelineerr.ConfigurationError{CompanyID: companyID, Message: "company has no active stages"}
		}

		app = &db.Application{
			CandidateID: candidateID,
			JobID:       jobID,
			CompanyID:   companyID,
			Status:      db.ApplicationStatusActive,
		}
		if err := q.CreateApplication(ctx, app); err != nil {
			return nil, err
		}
		if err := e.move(ctx, q, app, first, actorID, nil); err != nil {
			return nil, err
		}
		app.CurrentStageID = &first.ID

		out := &Outcome{
			ApplicationID: app.ID,
			NewStageID:    first.ID,
			NewStageName:  first.Name,
			Changed:       true,
			IsFinalStage:  p.IsFinal(first.Order),
			Message:       MsgEnrolled,
		}
		if out.IsFinalStage {
			if err := e.hire(ctx, q, app, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return app, out, nil
}

// AdvanceToNext moves an application to the next active stage. An
// application with no stage yet enters the first one. Entering the final
// stage provisions the candidate's account.
func (e *Engine) AdvanceToNext(ctx context.Context, applicationID, actorID uuid.UUID) (*Outcome, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	return e.run(ctx, "advance", func(q db.Queries) (*Outcome, error) {
		app, err := lockApplication(ctx, q, applicationID)
		if err != nil {
			return nil, err
		}
		p, err := stages.Load(ctx, q, app.CompanyID)
		if err != nil {
			return nil, err
		}
		cur, err := currentStage(ctx, q, app)
		if err != nil {
			return nil, err
		}

		var next *db.Stage
		if cur == nil {
			next = p.First()
			if next == nil {
				return nil, &pipelineerr.ConfigurationError{CompanyID: app.CompanyID, Message: "company has no active stages"}
			}
		} else {
			if p.IsFinal(cur.Order) {
				return nil, &pipelineerr.AlreadyFinalError{ApplicationID: app.ID}
			}
			next = p.Next(cur.Order)
		}

		out := &Outcome{
			ApplicationID: app.ID,
			FromStageID:   app.CurrentStageID,
			NewStageID:    next.ID,
			NewStageName:  next.Name,
			Changed:       true,
			IsFinalStage:  p.IsFinal(next.Order),
			Message:       MsgAdvanced,
		}
		if err := e.move(ctx, q, app, next, actorID, nil); err != nil {
			return nil, err
		}
		if out.IsFinalStage {
			if err := e.hire(ctx, q, app, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// SetStage moves an application to an explicit stage of its company.
// Leaving the final stage for a lower one deactivates the linked account
// before the pointer moves; entering the final stage provisions it.
func (e *Engine) SetStage(ctx context.Context, applicationID, targetStageID, actorID uuid.UUID, note *string) (*Outcome, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if targetStageID == uuid.Nil {
		return nil, &pipelineerr.ValidationError{Field: "stage_id", Message: "is required"}
	}
	if note != nil && len(*note) > MaxNoteLength {
		return nil, &pipelineerr.ValidationError{Field: "note", Message: fmt.Sprintf("must be at most %d characters", MaxNoteLength)}
	}

	return e.run(ctx, "set_stage", func(q db.Queries) (*Outcome, error) {
		app, err := lockApplication(ctx, q, applicationID)
		if err != nil {
			return nil, err
		}

		target, err := q.GetStage(ctx, targetStageID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, pipelineerr.NotFound("stage", targetStageID)
		}
		if target.CompanyID != app.CompanyID {
			return nil, &pipelineerr.ConfigurationError{CompanyID: app.CompanyID, StageID: target.ID, Message: "stage does not belong to the application's company"}
		}
		if !target.IsActive {
			return nil, &pipelineerr.ConfigurationError{CompanyID: app.CompanyID, StageID: target.ID, Message: "stage is inactive"}
		}

		p, err := stages.Load(ctx, q, app.CompanyID)
		if err != nil {
			return nil, err
		}
		out := &Outcome{
			ApplicationID: app.ID,
			FromStageID:   app.CurrentStageID,
			NewStageID:    target.ID,
			NewStageName:  target.Name,
			IsFinalStage:  p.IsFinal(target.Order),
			Message:       MsgStageUnchanged,
		}
		if app.CurrentStageID != nil && *app.CurrentStageID == target.ID {
			return out, nil
		}

		cur, err := currentStage(ctx, q, app)
		if err != nil {
			return nil, err
		}
		regression := cur != nil && p.IsFinal(cur.Order) && target.Order < cur.Order

		if regression {
			account, changed, err := e.accounts.DeactivateCandidate(ctx, q, app.CandidateID)
			if err != nil {
				return nil, fmt.Errorf("failed to deactivate account: %w", err)
			}
			if account != nil {
				id := account.ID
				out.AccountID = &id
			}
			out.UserDeactivated = changed
		}

		if err := e.move(ctx, q, app, target, actorID, note); err != nil {
			return nil, err
		}
		out.Changed = true
		out.Message = MsgStageUpdated
		if out.UserDeactivated {
			out.Message = MsgAccountDeactivate
		}

		if !regression && out.IsFinalStage {
			if err := e.hire(ctx, q, app, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}
