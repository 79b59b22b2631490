package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// -----------------------------------------------------------------------------
// Account Methods
// -----------------------------------------------------------------------------

const accountColumns = `id, email, first_name, last_name, company_id, linked_candidate_id, password_hash, is_active, created_at, updated_at`

func (q *queries) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
	var a Account
	err := q.conn.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where+` LIMIT 1`, arg,
	).Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.CompanyID, &a.LinkedCandidateID,
		&a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// GetAccount retrieves an account by ID
func (q *queries) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return q.getAccount(ctx, "id = $1", id)
}

// GetAccountByEmail looks an account up case-insensitively, locking the row so
// that link/reactivate decisions hold until commit
func (q *queries) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := q.conn.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = $1 FOR UPDATE`, NormalizeEmail(email),
	).Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.CompanyID, &a.LinkedCandidateID,
		&a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &a, nil
}

// GetAccountByCandidate returns the newest account linked to a candidate. A
// candidate re-hired under a new email can have more than one.
func (q *queries) GetAccountByCandidate(ctx context.Context, candidateID uuid.UUID) (*Account, error) {
	return q.getAccount(ctx, "linked_candidate_id = $1 ORDER BY created_at DESC, id DESC", candidateID)
}

// DeactivateCandidateAccounts clears is_active on every account linked to a
// candidate and returns the IDs that changed
func (q *queries) DeactivateCandidateAccounts(ctx context.Context, candidateID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.conn.Query(ctx,
		`UPDATE accounts SET is_active = false, updated_at = NOW()
		 WHERE linked_candidate_id = $1 AND is_active
		 RETURNING id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate candidate accounts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate candidate accounts: %w", err)
	}
	return ids, nil
}

// CreateAccount inserts an account. A duplicate email yields an
// AccountConflictError; the insert uses ON CONFLICT DO NOTHING so the
// surrounding transaction stays usable and the caller can recover.
func (q *queries) CreateAccount(ctx context.Context, account *Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	err := q.conn.QueryRow(ctx,
		`INSERT INTO accounts (id, email, first_name, last_name, company_id, linked_candidate_id, password_hash, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT ((lower(email))) DO NOTHING
		 RETURNING created_at, updated_at`,
		account.ID, account.Email, account.FirstName, account.LastName, account.CompanyID,
		account.LinkedCandidateID, account.PasswordHash, account.IsActive,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err, "uq_accounts_email") {
			return &pipelineerr.AccountConflictError{Email: account.Email}
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// LinkAccountToCandidate points an account at a candidate
func (q *queries) LinkAccountToCandidate(ctx context.Context, accountID, candidateID uuid.UUID) error {
	result, err := q.conn.Exec(ctx,
		`UPDATE accounts SET linked_candidate_id = $2, updated_at = NOW() WHERE id = $1`,
		accountID, candidateID)
	if err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}
	return nil
}

// SetAccountActive flips is_active
func (q *queries) SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	result, err := q.conn.Exec(ctx,
		`UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		accountID, active)
	if err != nil {
		return fmt.Errorf("failed to set account active=%t: %w", active, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Completion Methods
// -----------------------------------------------------------------------------

// GetCompletion returns the completion record for an application/document pair
func (q *queries) GetCompletion(ctx context.Context, applicationID, documentID uuid.UUID) (*CompletionRecord, error) {
	var r CompletionRecord
	err := q.conn.QueryRow(ctx,
		`SELECT id, application_id, document_id, file_ref, is_completed, completed_at, updated_at
		 FROM completion_records WHERE application_id = $1 AND document_id = $2`,
		applicationID, documentID,
	).Scan(&r.ID, &r.ApplicationID, &r.DocumentID, &r.FileRef, &r.IsCompleted, &r.CompletedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return &r, nil
}

// UpsertCompletion writes the single record for (application, document)
func (q *queries) UpsertCompletion(ctx context.Context, rec *CompletionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := q.conn.QueryRow(ctx,
		`INSERT INTO completion_records (id, application_id, document_id, file_ref, is_completed, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (application_id, document_id) DO UPDATE SET
		     file_ref = EXCLUDED.file_ref,
		     is_completed = EXCLUDED.is_completed,
		     completed_at = EXCLUDED.completed_at,
		     updated_at = NOW()
		 RETURNING id, updated_at`,
		rec.ID, rec.ApplicationID, rec.DocumentID, rec.FileRef, rec.IsCompleted, rec.CompletedAt,
	).Scan(&rec.ID, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert completion: %w", err)
	}
	return nil
}

// ListCompletions returns every completion record of an application
func (q *queries) ListCompletions(ctx context.Context, applicationID uuid.UUID) ([]CompletionRecord, error) {
	rows, err := q.conn.Query(ctx,
		`SELECT id, application_id, document_id, file_ref, is_completed, completed_at, updated_at
		 FROM completion_records WHERE application_id = $1
		 ORDER BY updated_at`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var recs []CompletionRecord
	for rows.Next() {
		var r CompletionRecord
		if err := rows.Scan(&r.ID, &r.ApplicationID, &r.DocumentID, &r.FileRef, &r.IsCompleted, &r.CompletedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
