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
// Job & Time Segment Methods
// -----------------------------------------------------------------------------

// GetJob retrieves a job by ID
func (q *queries) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	err := q.conn.QueryRow(ctx,
		`SELECT id, company_id, worker_id, client_id, title, status, created_at FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.CompanyID, &j.WorkerID, &j.ClientID, &j.Title, &j.Status, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

const segmentColumns = `id, job_id, worker_id, start_time, end_time, last_paused_at,
	cumulative_seconds, total_seconds, status, notes, created_at, updated_at`

func scanSegment(row pgx.Row) (*TimeSegment, error) {
	var s TimeSegment
	var status string
	err := row.Scan(&s.ID, &s.JobID, &s.WorkerID, &s.StartTime, &s.EndTime, &s.LastPausedAt,
		&s.CumulativeSeconds, &s.TotalSeconds, &status, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = SegmentStatus(status)
	return &s, nil
}

func (q *queries) listSegments(ctx context.Context, query string, args ...any) ([]TimeSegment, error) {
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time segments: %w", err)
	}
	defer rows.Close()

	var segs []TimeSegment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time segment: %w", err)
		}
		segs = append(segs, *s)
	}
	return segs, rows.Err()
}

// LockOpenSegment returns the non-completed segment of a (job, worker) pair
// under FOR UPDATE, or nil when the pair has no open timer
func (q *queries) LockOpenSegment(ctx context.Context, jobID, workerID uuid.UUID) (*TimeSegment, error) {
	s, err := scanSegment(q.conn.QueryRow(ctx,
		`SELECT `+segmentColumns+` FROM time_segments
		 WHERE job_id = $1 AND worker_id = $2 AND status <> 'completed'
		 FOR UPDATE`,
		jobID, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock open time segment: %w", err)
	}
	return s, nil
}

// InsertSegment creates a segment. The partial unique index on open segments
// turns a racing second Start into an AlreadyRunning timer error.
func (q *queries) InsertSegment(ctx context.Context, seg *TimeSegment) error {
	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	err := q.conn.QueryRow(ctx,
		`INSERT INTO time_segments (id, job_id, worker_id, start_time, end_time, last_paused_at,
		                            cumulative_seconds, total_seconds, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		seg.ID, seg.JobID, seg.WorkerID, seg.StartTime, seg.EndTime, seg.LastPausedAt,
		seg.CumulativeSeconds, seg.TotalSeconds, string(seg.Status), seg.Notes,
	).Scan(&seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "uq_time_segments_open") {
			return &pipelineerr.TimerStateError{
				Reason:   pipelineerr.ReasonAlreadyRunning,
				JobID:    seg.JobID,
				WorkerID: seg.WorkerID,
			}
		}
		return fmt.Errorf("failed to insert time segment: %w", err)
	}
	return nil
}

// UpdateSegment persists a segment's mutable fields
func (q *queries) UpdateSegment(ctx context.Context, seg *TimeSegment) error {
	err := q.conn.QueryRow(ctx,
		`UPDATE time_segments SET
		     start_time = $2, end_time = $3, last_paused_at = $4,
		     cumulative_seconds = $5, total_seconds = $6, status = $7, notes = $8,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		seg.ID, seg.StartTime, seg.EndTime, seg.LastPausedAt,
		seg.CumulativeSeconds, seg.TotalSeconds, string(seg.Status), seg.Notes,
	).Scan(&seg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("time segment not found: %s", seg.ID)
		}
		return fmt.Errorf("failed to update time segment: %w", err)
	}
	return nil
}

// ListSegmentsByJob returns all segments of a job, newest first
func (q *queries) ListSegmentsByJob(ctx context.Context, jobID uuid.UUID) ([]TimeSegment, error) {
	return q.listSegments(ctx,
		`SELECT `+segmentColumns+` FROM time_segments WHERE job_id = $1 ORDER BY created_at DESC, id`,
		jobID)
}

// ListCompletedSegments returns completed segments matching the filter,
// ordered by start_time
func (q *queries) ListCompletedSegments(ctx context.Context, filter SegmentFilter) ([]TimeSegment, error) {
	query := `SELECT ` + segmentColumns + ` FROM time_segments WHERE status = 'completed'`
	args := []any{}
	argNum := 1

	if filter.WorkerID != nil {
		query += fmt.Sprintf(" AND worker_id = $%d", argNum)
		args = append(args, *filter.WorkerID)
		argNum++
	}
	if filter.JobID != nil {
		query += fmt.Sprintf(" AND job_id = $%d", argNum)
		args = append(args, *filter.JobID)
		argNum++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argNum)
		args = append(args, *filter.From)
		argNum++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argNum)
		args = append(args, *filter.To)
	}

	query += " ORDER BY start_time, id"
	return q.listSegments(ctx, query, args...)
}
