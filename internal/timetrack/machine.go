// Package timetrack records work time on jobs as pausable segments.
//
// A segment moves none -> in_progress <-> paused -> completed. At most one
// segment per (job, worker) is open at a time. Durations are whole seconds
// computed from stored timestamps only.
package timetrack

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Default notes written when the caller supplies none
const (
	DefaultPauseNote = "Paused by user"
	DefaultStopNote  = "Completed work session"
)

// Snapshot is a segment together with its live elapsed time. ElapsedSeconds
// is for display only and never persisted.
type Snapshot struct {
	db.TimeSegment
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

// Machine is the time tracking state machine
type Machine struct {
	store                db.Store
	now                  func() time.Time
	requireActiveAccount bool
}

// Option customizes a Machine
type Option func(*Machine)

// WithClock overrides the clock
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// RequireActiveAccount makes Start refuse workers without an active account
func RequireActiveAccount(enabled bool) Option {
	return func(m *Machine) {
		m.requireActiveAccount = enabled
	}
}

// NewMachine creates a time tracking state machine
func NewMachine(store db.Store, opts ...Option) *Machine {
	m := &Machine{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ElapsedSeconds is the whole seconds between from and to, never negative
func ElapsedSeconds(from, to time.Time) int64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ActiveSeconds is the time worked on seg as of now
func ActiveSeconds(seg *db.TimeSegment, now time.Time) int64 {
	switch seg.Status {
	case db.SegmentInProgress:
		return seg.CumulativeSeconds + ElapsedSeconds(seg.StartTime, now)
	case db.SegmentCompleted:
		return seg.TotalSeconds
	default:
		return seg.CumulativeSeconds
	}
}

func (m *Machine) snapshot(seg *db.TimeSegment, now time.Time) *Snapshot {
	return &Snapshot{TimeSegment: *seg, ElapsedSeconds: ActiveSeconds(seg, now)}
}

func noteOr(note *string, fallback string) *string {
	if note != nil && *note != "" {
		return note
	}
	return &fallback
}

// assignment loads a job and its worker
func assignment(ctx context.Context, q db.Queries, jobID uuid.UUID) (*db.Job, uuid.UUID, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if job == nil {
		return nil, uuid.Nil, pipelineerr.NotFound("job", jobID)
	}
	if job.WorkerID == nil {
		return nil, uuid.Nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonNoWorker, JobID: jobID}
	}
	return job, *job.WorkerID, nil
}

// mutate runs fn against the locked open segment of the job's worker
func (m *Machine) mutate(ctx context.Context, jobID uuid.UUID, fn func(q db.Queries, workerID uuid.UUID, open *db.TimeSegment, now time.Time) (*db.TimeSegment, error)) (*Snapshot, error) {
	var (
		seg *db.TimeSegment
		now time.Time
	)
	err := m.store.InTx(ctx, func(q db.Queries) error {
		_, workerID, err := assignment(ctx, q, jobID)
		if err != nil {
			return err
		}
		open, err := q.LockOpenSegment(ctx, jobID, workerID)
		if err != nil {
			return err
		}
		now = m.now()
		seg, err = fn(q, workerID, open, now)
		return err
	})
	if err != nil {
		if pipelineerr.KindOf(err) == pipelineerr.KindCommitUncertain {
			log.Printf("[anomaly] timer update for job %s: commit outcome unknown: %v", jobID, err)
		}
		return nil, err
	}
	return m.snapshot(seg, now), nil
}

// Start opens a new in_progress segment for the job's worker
func (m *Machine) Start(ctx context.Context, jobID uuid.UUID) (*Snapshot, error) {
	return m.mutate(ctx, jobID, func(q db.Queries, workerID uuid.UUID, open *db.TimeSegment, now time.Time) (*db.TimeSegment, error) {
		if open != nil {
			return nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonAlreadyRunning, JobID: jobID, WorkerID: workerID}
		}
		if m.requireActiveAccount {
			account, err := q.GetAccountByCandidate(ctx, workerID)
			if err != nil {
				return nil, err
			}
			if account == nil || !account.IsActive {
				return nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonAccountInactive, JobID: jobID, WorkerID: workerID}
			}
		}

		seg := &db.TimeSegment{
			JobID:     jobID,
			WorkerID:  workerID,
			StartTime: now,
			Status:    db.SegmentInProgress,
		}
		if err := q.InsertSegment(ctx, seg); err != nil {
			return nil, err
		}
		log.Printf("[timetrack] started segment %s for job %s worker %s", seg.ID, jobID, workerID)
		return seg, nil
	})
}

// Pause folds the running stretch into cumulative_seconds
func (m *Machine) Pause(ctx context.Context, jobID uuid.UUID, note *string) (*Snapshot, error) {
	return m.mutate(ctx, jobID, func(q db.Queries, workerID uuid.UUID, open *db.TimeSegment, now time.Time) (*db.TimeSegment, error) {
		if open == nil || open.Status != db.SegmentInProgress {
			return nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonNotRunning, JobID: jobID, WorkerID: workerID}
		}
		open.CumulativeSeconds += ElapsedSeconds(open.StartTime, now)
		open.TotalSeconds = open.CumulativeSeconds
		open.LastPausedAt = &now
		open.Status = db.SegmentPaused
		open.Notes = noteOr(note, DefaultPauseNote)
		if err := q.UpdateSegment(ctx, open); err != nil {
			return nil, err
		}
		return open, nil
	})
}

// Resume restarts a paused segment; cumulative_seconds is left unchanged
func (m *Machine) Resume(ctx context.Context, jobID uuid.UUID) (*Snapshot, error) {
	return m.mutate(ctx, jobID, func(q db.Queries, workerID uuid.UUID, open *db.TimeSegment, now time.Time) (*db.TimeSegment, error) {
		if open == nil || open.Status != db.SegmentPaused {
			return nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonNotPaused, JobID: jobID, WorkerID: workerID}
		}
		open.StartTime = now
		open.Status = db.SegmentInProgress
		if err := q.UpdateSegment(ctx, open); err != nil {
			return nil, err
		}
		return open, nil
	})
}

// Stop completes the open segment. From in_progress the running stretch is
// added; from paused the cumulative total is final as is.
func (m *Machine) Stop(ctx context.Context, jobID uuid.UUID, note *string) (*Snapshot, error) {
	return m.mutate(ctx, jobID, func(q db.Queries, workerID uuid.UUID, open *db.TimeSegment, now time.Time) (*db.TimeSegment, error) {
		if open == nil {
			return nil, &pipelineerr.TimerStateError{Reason: pipelineerr.ReasonNoActiveTimer, JobID: jobID, WorkerID: workerID}
		}
		final := open.CumulativeSeconds
		if open.Status == db.SegmentInProgress {
			final += ElapsedSeconds(open.StartTime, now)
		}
		open.CumulativeSeconds = final
		open.TotalSeconds = final
		open.EndTime = &now
		open.Status = db.SegmentCompleted
		open.Notes = noteOr(note, DefaultStopNote)
		if err := q.UpdateSegment(ctx, open); err != nil {
			return nil, err
		}
		log.Printf("[timetrack] completed segment %s for job %s: %ds", open.ID, jobID, final)
		return open, nil
	})
}

// Current returns the open segment of the job's worker, or nil
func (m *Machine) Current(ctx context.Context, jobID uuid.UUID) (*Snapshot, error) {
	var (
		seg *db.TimeSegment
		now time.Time
	)
	err := m.store.InTx(ctx, func(q db.Queries) error {
		_, workerID, err := assignment(ctx, q, jobID)
		if err != nil {
			return err
		}
		seg, err = q.LockOpenSegment(ctx, jobID, workerID)
		now = m.now()
		return err
	})
	if err != nil || seg == nil {
		return nil, err
	}
	return m.snapshot(seg, now), nil
}

// Logs lists every segment of a job, newest first
func (m *Machine) Logs(ctx context.Context, jobID uuid.UUID) ([]Snapshot, error) {
	var (
		segs []db.TimeSegment
		now  time.Time
	)
	err := m.store.InTx(ctx, func(q db.Queries) error {
		job, err := q.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return pipelineerr.NotFound("job", jobID)
		}
		segs, err = q.ListSegmentsByJob(ctx, jobID)
		now = m.now()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(segs))
	for i := range segs {
		out[i] = *m.snapshot(&segs[i], now)
	}
	return out, nil
}
