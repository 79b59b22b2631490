package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Application Methods
// -----------------------------------------------------------------------------

const applicationColumns = `id, candidate_id, job_id, company_id, current_stage_id, status, created_at, updated_at`

func (q *queries) getApplication(ctx context.Context, query string, id uuid.UUID) (*Application, error) {
	var a Application
	err := q.conn.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.CandidateID, &a.JobID, &a.CompanyID, &a.CurrentStageID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &a, nil
}

// GetApplication retrieves an application without locking it
func (q *queries) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	return q.getApplication(ctx,
		`SELECT `+applicationColumns+` FROM candidate_applications WHERE id = $1`, id)
}

// LockApplicationForUpdate reads an application with SELECT ... FOR UPDATE.
// Concurrent transitions on the same application queue behind this lock.
func (q *queries) LockApplicationForUpdate(ctx context.Context, id uuid.UUID) (*Application, error) {
	return q.getApplication(ctx,
		`SELECT `+applicationColumns+` FROM candidate_applications WHERE id = $1 FOR UPDATE`, id)
}

// CreateApplication inserts an application
func (q *queries) CreateApplication(ctx context.Context, app *Application) error {
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	if app.Status == "" {
		app.Status = ApplicationStatusActive
	}
	err := q.conn.QueryRow(ctx,
		`INSERT INTO candidate_applications (id, candidate_id, job_id, company_id, current_stage_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		app.ID, app.CandidateID, app.JobID, app.CompanyID, app.CurrentStageID, app.Status,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// UpdateApplicationStage moves the application's stage pointer
func (q *queries) UpdateApplicationStage(ctx context.Context, id, stageID uuid.UUID) error {
	result, err := q.conn.Exec(ctx,
		`UPDATE candidate_applications SET current_stage_id = $2, updated_at = NOW() WHERE id = $1`,
		id, stageID)
	if err != nil {
		return fmt.Errorf("failed to update application stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("application not found: %s", id)
	}
	return nil
}

// AppendTransitionLog inserts an audit entry. Entries are never updated.
func (q *queries) AppendTransitionLog(ctx context.Context, entry *TransitionLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = touch()
	}
	_, err := q.conn.Exec(ctx,
		`INSERT INTO application_transition_logs (id, application_id, from_stage_id, to_stage_id, actor_id, changed_at, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ApplicationID, entry.FromStageID, entry.ToStageID, entry.ActorID, entry.Timestamp, entry.Note)
	if err != nil {
		return fmt.Errorf("failed to append transition log: %w", err)
	}
	return nil
}

// ListTransitionLogs returns an application's audit trail, oldest first
func (q *queries) ListTransitionLogs(ctx context.Context, applicationID uuid.UUID) ([]TransitionLogEntry, error) {
	rows, err := q.conn.Query(ctx,
		`SELECT id, application_id, from_stage_id, to_stage_id, actor_id, changed_at, note
		 FROM application_transition_logs
		 WHERE application_id = $1
		 ORDER BY changed_at, id`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition logs: %w", err)
	}
	defer rows.Close()

	var entries []TransitionLogEntry
	for rows.Next() {
		var e TransitionLogEntry
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.FromStageID, &e.ToStageID, &e.ActorID, &e.Timestamp, &e.Note); err != nil {
			return nil, fmt.Errorf("failed to scan transition log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetCandidate retrieves a candidate by ID
func (q *queries) GetCandidate(ctx context.Context, id uuid.UUID) (*Candidate, error) {
	var c Candidate
	err := q.conn.QueryRow(ctx,
		`SELECT id, company_id, first_name, last_name, email, created_at FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return &c, nil
}
