package hours

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/db/dbtest"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

type hoursFixture struct {
	store  *dbtest.Store
	engine *Engine
	worker uuid.UUID
	jobA   db.Job
	jobB   db.Job
}

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func newHoursFixture(t *testing.T) *hoursFixture {
	t.Helper()
	s := dbtest.New()
	worker := uuid.New()
	f := &hoursFixture{
		store:  s,
		engine: NewEngine(s, nil),
		worker: worker,
		jobA:   s.AddJob(db.Job{Title: "Forklift", WorkerID: &worker}),
		jobB:   s.AddJob(db.Job{Title: "Inventory", WorkerID: &worker}),
	}
	add := func(job uuid.UUID, start time.Time, secs int64, status db.SegmentStatus) {
		s.AddSegment(db.TimeSegment{JobID: job, WorkerID: worker, StartTime: start, TotalSeconds: secs, CumulativeSeconds: secs, Status: status})
	}
	add(f.jobA.ID, at(2, 8), 3600, db.SegmentCompleted)
	add(f.jobA.ID, at(2, 14), 1800, db.SegmentCompleted)
	add(f.jobB.ID, at(3, 9), 5400, db.SegmentCompleted)
	add(f.jobB.ID, at(4, 23), 900, db.SegmentCompleted)
	// Open segments never count.
	add(f.jobA.ID, at(4, 10), 7200, db.SegmentPaused)
	// Someone else's time.
	s.AddSegment(db.TimeSegment{JobID: f.jobA.ID, WorkerID: uuid.New(), StartTime: at(2, 8), TotalSeconds: 999, Status: db.SegmentCompleted})
	return f
}

func TestTotalSeconds(t *testing.T) {
	f := newHoursFixture(t)
	ctx := context.Background()

	total, err := f.engine.TotalSeconds(ctx, Query{WorkerID: &f.worker})
	require.NoError(t, err)
	assert.Equal(t, int64(11700), total)

	total, err = f.engine.TotalSeconds(ctx, Query{JobID: &f.jobB.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(6300), total)

	// The window filters on start_time, From inclusive and To exclusive.
	total, err = f.engine.TotalSeconds(ctx, Query{WorkerID: &f.worker, Period: &Period{From: at(2, 14), To: at(3, 9)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), total)

	_, err = f.engine.TotalSeconds(ctx, Query{})
	assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
}

func TestDailyBreakdown(t *testing.T) {
	f := newHoursFixture(t)
	ctx := context.Background()

	days, err := f.engine.DailyBreakdown(ctx, Query{WorkerID: &f.worker})
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, DayTotal{Date: "2026-03-02", Seconds: 5400, Hours: 1.5, Sessions: 2}, days[0])
	assert.Equal(t, "2026-03-03", days[1].Date)
	assert.Equal(t, "2026-03-04", days[2].Date)

	// Calendar days follow the engine's timezone.
	loc := time.FixedZone("UTC+2", 2*3600)
	days, err = NewEngine(f.store, loc).DailyBreakdown(ctx, Query{JobID: &f.jobB.ID})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-05", days[1].Date)
}

func TestPerJobBreakdown(t *testing.T) {
	f := newHoursFixture(t)

	jobs, err := f.engine.PerJobBreakdown(context.Background(), Query{WorkerID: &f.worker})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, f.jobB.ID, jobs[0].JobID)
	assert.Equal(t, int64(6300), jobs[0].Seconds)
	assert.Equal(t, 1.75, jobs[0].Hours)
	assert.Equal(t, 2, jobs[1].Sessions)
}

func TestSummaryAndReport(t *testing.T) {
	f := newHoursFixture(t)
	ctx := context.Background()

	sum, err := f.engine.Summary(ctx, f.worker, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11700), sum.TotalSeconds)
	assert.Equal(t, 2, sum.TotalJobs)
	assert.Equal(t, 4, sum.TotalSessions)
	assert.Equal(t, "03:15:00", sum.FormattedTime)
	assert.Equal(t, "3.25 hrs", sum.FormattedHours)

	txBefore := f.store.TxCount()
	report, err := f.engine.Report(ctx, Query{WorkerID: &f.worker})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.TxCount()-txBefore, "all views come from one read")
	assert.Equal(t, sum, report.Summary)
	assert.Len(t, report.Daily, 3)
	assert.Len(t, report.PerJob, 2)

	var daily, jobs int64
	var sessions int
	for _, d := range report.Daily {
		daily += d.Seconds
		sessions += d.Sessions
	}
	for _, j := range report.PerJob {
		jobs += j.Seconds
	}
	assert.Equal(t, report.Summary.TotalSeconds, daily)
	assert.Equal(t, report.Summary.TotalSeconds, jobs)
	assert.Equal(t, report.Summary.TotalSessions, sessions)

	_, err = f.engine.Report(ctx, Query{})
	assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
}

func TestLineItems(t *testing.T) {
	f := newHoursFixture(t)
	ctx := context.Background()

	period, err := DateRange("2026-03-02", "2026-03-03", time.UTC)
	require.NoError(t, err)
	items, err := f.engine.LineItems(ctx, f.worker, period, 25)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "2026-03-02", items[0].Date)
	assert.Equal(t, "Worked on Forklift", items[0].Description)
	assert.Equal(t, 1.0, items[0].Hours)
	assert.Equal(t, 25.0, items[0].Amount)
	assert.Equal(t, 0.5, items[1].Hours)
	assert.Equal(t, 37.5, items[2].Amount)

	_, err = f.engine.LineItems(ctx, f.worker, nil, -1)
	assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
}

func TestLineItems_UnknownJob(t *testing.T) {
	s := dbtest.New()
	worker := uuid.New()
	s.AddSegment(db.TimeSegment{JobID: uuid.New(), WorkerID: worker, StartTime: at(1, 9), TotalSeconds: 60, Status: db.SegmentCompleted})

	items, err := NewEngine(s, nil).LineItems(context.Background(), worker, nil, 60)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Work hours", items[0].Description)
	assert.Equal(t, 0.02, items[0].Hours)
	assert.Equal(t, 1.0, items[0].Amount)
}
