package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Stage Methods
// -----------------------------------------------------------------------------

const stageColumns = `id, company_id, name, type, stage_order, is_active, created_at, updated_at`

func scanStage(row pgx.Row) (*Stage, error) {
	var s Stage
	var stageType string
	if err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &stageType, &s.Order, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Type = StageType(stageType)
	return &s, nil
}

// LockCompanyStages takes a transaction-scoped advisory lock on the company's
// stage configuration. Writers that check order uniqueness before writing
// hold it, so their checks never interleave.
func (q *queries) LockCompanyStages(ctx context.Context, companyID uuid.UUID) error {
	if _, err := q.conn.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, companyID.String()); err != nil {
		return fmt.Errorf("failed to lock stages of company %s: %w", companyID, err)
	}
	return nil
}

func (q *queries) listStages(ctx context.Context, query string, args ...any) ([]Stage, error) {
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, *s)
	}
	return stages, rows.Err()
}

// ListActiveStages returns a company's active stages by ascending order
func (q *queries) ListActiveStages(ctx context.Context, companyID uuid.UUID) ([]Stage, error) {
	return q.listStages(ctx,
		`SELECT `+stageColumns+` FROM company_stages
		 WHERE company_id = $1 AND is_active = TRUE
		 ORDER BY stage_order, id`,
		companyID)
}

// ListStages returns every stage of a company, active or not
func (q *queries) ListStages(ctx context.Context, companyID uuid.UUID) ([]Stage, error) {
	return q.listStages(ctx,
		`SELECT `+stageColumns+` FROM company_stages
		 WHERE company_id = $1
		 ORDER BY stage_order, id`,
		companyID)
}

// GetStage retrieves a stage by ID
func (q *queries) GetStage(ctx context.Context, id uuid.UUID) (*Stage, error) {
	s, err := scanStage(q.conn.QueryRow(ctx,
		`SELECT `+stageColumns+` FROM company_stages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return s, nil
}

// CreateStage inserts a stage, assigning ID and timestamps
func (q *queries) CreateStage(ctx context.Context, stage *Stage) error {
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	err := q.conn.QueryRow(ctx,
		`INSERT INTO company_stages (id, company_id, name, type, stage_order, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		stage.ID, stage.CompanyID, stage.Name, string(stage.Type), stage.Order, stage.IsActive,
	).Scan(&stage.CreatedAt, &stage.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}
	return nil
}

// UpdateStage writes name, type, order and active flag
func (q *queries) UpdateStage(ctx context.Context, stage *Stage) error {
	err := q.conn.QueryRow(ctx,
		`UPDATE company_stages
		 SET name = $2, type = $3, stage_order = $4, is_active = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		stage.ID, stage.Name, string(stage.Type), stage.Order, stage.IsActive,
	).Scan(&stage.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("stage not found: %s", stage.ID)
		}
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

// DeleteStage hard-deletes a stage. Callers must check references first; the
// RESTRICT foreign keys are the last line of defense.
func (q *queries) DeleteStage(ctx context.Context, id uuid.UUID) error {
	result, err := q.conn.Exec(ctx, `DELETE FROM company_stages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("stage not found: %s", id)
	}
	return nil
}

// CountStageReferences counts applications and log entries pointing at a stage
func (q *queries) CountStageReferences(ctx context.Context, stageID uuid.UUID) (*StageReferences, error) {
	var refs StageReferences
	err := q.conn.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM candidate_applications WHERE current_stage_id = $1),
		     (SELECT COUNT(*) FROM candidate_applications WHERE current_stage_id = $1 AND status = $2),
		     (SELECT COUNT(*) FROM application_transition_logs WHERE from_stage_id = $1 OR to_stage_id = $1)`,
		stageID, ApplicationStatusActive,
	).Scan(&refs.Applications, &refs.ActiveApplications, &refs.LogEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count stage references: %w", err)
	}
	return &refs, nil
}

// ListStageDocuments returns a stage's documents in requirement order
func (q *queries) ListStageDocuments(ctx context.Context, stageID uuid.UUID) ([]StageDocument, error) {
	rows, err := q.conn.Query(ctx,
		`SELECT d.id, d.code, d.name, d.description, d.path, d.is_fillable, sd.is_required, sd.document_order
		 FROM stage_documents sd
		 JOIN documents d ON d.id = sd.document_id
		 WHERE sd.stage_id = $1
		 ORDER BY sd.document_order, d.code`,
		stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage documents: %w", err)
	}
	defer rows.Close()

	var docs []StageDocument
	for rows.Next() {
		var d StageDocument
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Description, &d.Path, &d.IsFillable, &d.IsRequired, &d.Order); err != nil {
			return nil, fmt.Errorf("failed to scan stage document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ReplaceStageDocuments swaps a stage's requirement list
func (q *queries) ReplaceStageDocuments(ctx context.Context, stageID uuid.UUID, reqs []DocumentRequirement) error {
	if _, err := q.conn.Exec(ctx, `DELETE FROM stage_documents WHERE stage_id = $1`, stageID); err != nil {
		return fmt.Errorf("failed to clear stage documents: %w", err)
	}
	for _, r := range reqs {
		_, err := q.conn.Exec(ctx,
			`INSERT INTO stage_documents (stage_id, document_id, is_required, document_order)
			 VALUES ($1, $2, $3, $4)`,
			stageID, r.DocumentID, r.IsRequired, r.Order)
		if err != nil {
			return fmt.Errorf("failed to add document %s to stage: %w", r.DocumentID, err)
		}
	}
	return nil
}

const documentColumns = `id, code, name, description, path, is_fillable`

func (q *queries) getDocument(ctx context.Context, where string, arg any) (*Document, error) {
	var d Document
	err := q.conn.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where, arg,
	).Scan(&d.ID, &d.Code, &d.Name, &d.Description, &d.Path, &d.IsFillable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

// GetDocument retrieves a document by ID
func (q *queries) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return q.getDocument(ctx, "id = $1", id)
}

// GetDocumentByCode retrieves a document by its form code
func (q *queries) GetDocumentByCode(ctx context.Context, code string) (*Document, error) {
	return q.getDocument(ctx, "code = $1", code)
}

// touch is the clock used for rows whose timestamp is set in Go
var touch = func() time.Time { return time.Now().UTC() }
