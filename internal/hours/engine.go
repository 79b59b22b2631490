// Package hours aggregates completed work time. Only completed segments are
// ever counted; open timers do not bill until they are stopped.
package hours

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Query selects completed segments by worker and/or job, optionally within a
// period over segment start times
type Query struct {
	WorkerID *uuid.UUID
	JobID    *uuid.UUID
	Period   *Period
}

func (q Query) filter() (db.SegmentFilter, error) {
	if q.WorkerID == nil && q.JobID == nil {
		return db.SegmentFilter{}, &pipelineerr.ValidationError{Field: "worker_id", Message: "worker or job is required"}
	}
	f := db.SegmentFilter{WorkerID: q.WorkerID, JobID: q.JobID}
	if q.Period != nil {
		if !q.Period.From.IsZero() {
			from := q.Period.From
			f.From = &from
		}
		if !q.Period.To.IsZero() {
			to := q.Period.To
			f.To = &to
		}
	}
	return f, nil
}

// DayTotal is the work of one calendar day
type DayTotal struct {
	Date     string  `json:"date"`
	Seconds  int64   `json:"total_seconds"`
	Hours    float64 `json:"hours"`
	Sessions int     `json:"sessions"`
}

// JobTotal is the work on one job
type JobTotal struct {
	JobID    uuid.UUID `json:"job_id"`
	Seconds  int64     `json:"total_seconds"`
	Hours    float64   `json:"hours"`
	Sessions int       `json:"sessions"`
}

// Summary totals a worker's completed time
type Summary struct {
	TotalSeconds   int64   `json:"total_seconds"`
	TotalHours     float64 `json:"total_hours"`
	TotalJobs      int     `json:"total_jobs"`
	TotalSessions  int     `json:"total_sessions"`
	FormattedTime  string  `json:"formatted_time"`
	FormattedHours string  `json:"formatted_hours"`
}

// LineItem is one billable line, one per completed segment
type LineItem struct {
	SegmentID   uuid.UUID `json:"time_log_id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Hours       float64   `json:"hours"`
	Rate        float64   `json:"rate"`
	Amount      float64   `json:"amount"`
}

// Report bundles the summary and both breakdowns of one query
type Report struct {
	Summary *Summary   `json:"summary"`
	Daily   []DayTotal `json:"daily"`
	PerJob  []JobTotal `json:"per_job"`
}

// Engine is the read-side hour aggregation engine
type Engine struct {
	store db.Store
	loc   *time.Location
}

// NewEngine creates an aggregation engine. Calendar days are taken in loc
// (UTC when nil).
func NewEngine(store db.Store, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, loc: loc}
}

// Location is the timezone calendar days are computed in
func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) completed(ctx context.Context, query Query) ([]db.TimeSegment, error) {
	f, err := query.filter()
	if err != nil {
		return nil, err
	}
	var segs []db.TimeSegment
	err = e.store.InTx(ctx, func(q db.Queries) error {
		var err error
		segs, err = q.ListCompletedSegments(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return segs, nil
}

// TotalSeconds sums total_seconds over the matching completed segments
func (e *Engine) TotalSeconds(ctx context.Context, query Query) (int64, error) {
	segs, err := e.completed(ctx, query)
	if err != nil {
		return 0, err
	}
	return sumSeconds(segs), nil
}

func sumSeconds(segs []db.TimeSegment) int64 {
	var total int64
	for _, s := range segs {
		total += s.TotalSeconds
	}
	return total
}

// DailyBreakdown groups completed time by the calendar day of start_time
func (e *Engine) DailyBreakdown(ctx context.Context, query Query) ([]DayTotal, error) {
	segs, err := e.completed(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.daily(segs), nil
}

func (e *Engine) daily(segs []db.TimeSegment) []DayTotal {
	byDay := map[string]*DayTotal{}
	var order []string
	for _, s := range segs {
		day := s.StartTime.In(e.loc).Format(time.DateOnly)
		t, ok := byDay[day]
		if !ok {
			t = &DayTotal{Date: day}
			byDay[day] = t
			order = append(order, day)
		}
		t.Seconds += s.TotalSeconds
		t.Sessions++
	}
	sort.Strings(order)
	out := make([]DayTotal, 0, len(order))
	for _, day := range order {
		t := byDay[day]
		t.Hours = SecondsToHours(t.Seconds)
		out = append(out, *t)
	}
	return out
}

// PerJobBreakdown groups completed time by job
func (e *Engine) PerJobBreakdown(ctx context.Context, query Query) ([]JobTotal, error) {
	segs, err := e.completed(ctx, query)
	if err != nil {
		return nil, err
	}
	return perJob(segs), nil
}

func perJob(segs []db.TimeSegment) []JobTotal {
	byJob := map[uuid.UUID]*JobTotal{}
	for _, s := range segs {
		t, ok := byJob[s.JobID]
		if !ok {
			t = &JobTotal{JobID: s.JobID}
			byJob[s.JobID] = t
		}
		t.Seconds += s.TotalSeconds
		t.Sessions++
	}
	out := make([]JobTotal, 0, len(byJob))
	for _, t := range byJob {
		t.Hours = SecondsToHours(t.Seconds)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].JobID.String() < out[j].JobID.String()
	})
	return out
}

// Summary totals a worker's completed time within an optional period
func (e *Engine) Summary(ctx context.Context, workerID uuid.UUID, period *Period) (*Summary, error) {
	segs, err := e.completed(ctx, Query{WorkerID: &workerID, Period: period})
	if err != nil {
		return nil, err
	}
	return summarize(segs), nil
}

func summarize(segs []db.TimeSegment) *Summary {
	jobs := map[uuid.UUID]struct{}{}
	for _, s := range segs {
		jobs[s.JobID] = struct{}{}
	}
	total := sumSeconds(segs)
	return &Summary{
		TotalSeconds:   total,
		TotalHours:     SecondsToHours(total),
		TotalJobs:      len(jobs),
		TotalSessions:  len(segs),
		FormattedTime:  FormatSeconds(total),
		FormattedHours: FormatHours(float64(total) / 3600),
	}
}

// Report computes the summary and both breakdowns from one read of the
// segments, so the three views always agree.
func (e *Engine) Report(ctx context.Context, query Query) (*Report, error) {
	segs, err := e.completed(ctx, query)
	if err != nil {
		return nil, err
	}

	var r Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.Summary = summarize(segs)
		return gctx.Err()
	})
	g.Go(func() error {
		r.Daily = e.daily(segs)
		return gctx.Err()
	})
	g.Go(func() error {
		r.PerJob = perJob(segs)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LineItems produces one billable line per completed segment of the worker
func (e *Engine) LineItems(ctx context.Context, workerID uuid.UUID, period *Period, hourlyRate float64) ([]LineItem, error) {
	if hourlyRate < 0 {
		return nil, &pipelineerr.ValidationError{Field: "hourly_rate", Message: "must not be negative"}
	}
	f, err := Query{WorkerID: &workerID, Period: period}.filter()
	if err != nil {
		return nil, err
	}

	var items []LineItem
	err = e.store.InTx(ctx, func(q db.Queries) error {
		segs, err := q.ListCompletedSegments(ctx, f)
		if err != nil {
			return err
		}
		titles := map[uuid.UUID]string{}
		items = make([]LineItem, 0, len(segs))
		for _, s := range segs {
			title, ok := titles[s.JobID]
			if !ok {
				job, err := q.GetJob(ctx, s.JobID)
				if err != nil {
					return err
				}
				if job != nil {
					title = job.Title
				}
				titles[s.JobID] = title
			}
			desc := "Work hours"
			if title != "" {
				desc = "Worked on " + title
			}
			raw := float64(s.TotalSeconds) / 3600
			items = append(items, LineItem{
				SegmentID:   s.ID,
				Date:        s.StartTime.In(e.loc).Format(time.DateOnly),
				Description: desc,
				Hours:       round2(raw),
				Rate:        hourlyRate,
				Amount:      round2(raw * hourlyRate),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
