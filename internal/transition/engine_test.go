package transition

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jonathan/staffing-pipeline/internal/accounts"
	"github.com/jonathan/staffing-pipeline/internal/config"
	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/db/dbtest"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []accounts.Welcome
	err  error
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, w accounts.Welcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, w)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	store    *dbtest.Store
	engine   *Engine
	notifier *recordingNotifier
	company  uuid.UUID
	stages   []db.Stage
	cand     db.Candidate
	actor    uuid.UUID
}

// newFixture seeds a company with Applied(1), Interview(2), an inactive
// Archived(3) and Hired(4).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := dbtest.New()
	company := uuid.New()
	f := &fixture{store: s, company: company, notifier: &recordingNotifier{}}
	for _, st := range []db.Stage{
		{Name: "Applied", Order: 1, IsActive: true, Type: db.StageTypeHiring},
		{Name: "Interview", Order: 2, IsActive: true, Type: db.StageTypeHiring},
		{Name: "Archived", Order: 3, IsActive: false, Type: db.StageTypeCustom},
		{Name: "Hired", Order: 4, IsActive: true, Type: db.StageTypeOnboarding},
	} {
		st.CompanyID = company
		f.stages = append(f.stages, s.AddStage(st))
	}
	f.cand = s.AddCandidate(db.Candidate{CompanyID: company, FirstName: "Jane", LastName: "Doe", Email: "Jane@Example.com"})
	admin := s.AddAccount(db.Account{Email: "recruiter@example.com", FirstName: "Rita", LastName: "Recruiter", IsActive: true})
	f.actor = admin.ID

	provisioner := accounts.NewProvisioner(&config.PasswordConfig{BcryptCost: bcrypt.MinCost}, f.notifier)
	f.engine = NewEngine(s, provisioner)
	return f
}

func (f *fixture) application(stage *db.Stage) db.Application {
	app := db.Application{CandidateID: f.cand.ID, JobID: uuid.New(), CompanyID: f.company}
	if stage != nil {
		id := stage.ID
		app.CurrentStageID = &id
	}
	return f.store.AddApplication(app)
}

func (f *fixture) currentStage(t *testing.T, appID uuid.UUID) uuid.UUID {
	t.Helper()
	app, ok := f.store.Application(appID)
	require.True(t, ok)
	require.NotNil(t, app.CurrentStageID)
	return *app.CurrentStageID
}

func TestAdvanceToNext_FromUnsetEntersFirstStage(t *testing.T) {
	f := newFixture(t)
	app := f.application(nil)

	out, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	require.NoError(t, err)
	assert.Equal(t, f.stages[0].ID, out.NewStageID)
	assert.Nil(t, out.FromStageID)
	assert.Equal(t, MsgAdvanced, out.Message)

	logs := f.store.Logs(app.ID)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].FromStageID)
	assert.Equal(t, f.actor, logs[0].ActorID)
}

func TestAdvanceToNext_SkipsInactiveAndHires(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[1])

	out, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	require.NoError(t, err)
	assert.Equal(t, f.stages[3].ID, out.NewStageID, "inactive Archived is skipped")
	assert.True(t, out.IsFinalStage)
	assert.True(t, out.UserCreated)
	assert.True(t, out.WelcomeSent)
	assert.Equal(t, MsgHiredCreated, out.Message)
	require.NotNil(t, out.AccountID)

	acct, ok := f.store.Account(*out.AccountID)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", acct.Email)
	assert.True(t, acct.IsActive)
	assert.Equal(t, 1, f.notifier.count())
}

func TestAdvanceToNext_AtFinalStage(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[3])
	hired := f.store.AddAccount(db.Account{
		Email: "jane@example.com", CompanyID: f.company, LinkedCandidateID: &f.cand.ID, IsActive: true,
	})
	accountsBefore := f.store.Accounts()

	_, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	var finalErr *pipelineerr.AlreadyFinalError
	require.ErrorAs(t, err, &finalErr)
	assert.Equal(t, app.ID, finalErr.ApplicationID)

	assert.Empty(t, f.store.Logs(app.ID))
	assert.Equal(t, f.stages[3].ID, f.currentStage(t, app.ID))
	assert.ElementsMatch(t, accountsBefore, f.store.Accounts())
	acct, ok := f.store.Account(hired.ID)
	require.True(t, ok)
	assert.True(t, acct.IsActive)
	assert.Equal(t, 0, f.notifier.count())
}

func TestAdvanceToNext_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown application", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AdvanceToNext(ctx, uuid.New(), f.actor)
		assert.Equal(t, pipelineerr.KindNotFound, pipelineerr.KindOf(err))
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newFixture(t)
		app := f.application(nil)
		_, err := f.engine.AdvanceToNext(ctx, app.ID, uuid.Nil)
		assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
	})

	t.Run("duplicate active orders", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddStage(db.Stage{CompanyID: f.company, Name: "Dup", Order: 2, IsActive: true, Type: db.StageTypeHiring})
		app := f.application(&f.stages[0])
		_, err := f.engine.AdvanceToNext(ctx, app.ID, f.actor)
		assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))
		assert.Equal(t, f.stages[0].ID, f.currentStage(t, app.ID))
	})

	t.Run("no active stages", func(t *testing.T) {
		f := newFixture(t)
		app := f.store.AddApplication(db.Application{CandidateID: f.cand.ID, CompanyID: uuid.New()})
		_, err := f.engine.AdvanceToNext(ctx, app.ID, f.actor)
		assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))
	})
}

func TestAdvanceToNext_LogFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[0])
	boom := errors.New("log write failed")
	f.store.FailOn("AppendTransitionLog", boom)

	_, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, f.stages[0].ID, f.currentStage(t, app.ID))
	assert.Empty(t, f.store.Logs(app.ID))
}

func TestAdvanceToNext_AccountFailureRollsBackMove(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[1])
	boom := errors.New("accounts table locked")
	f.store.FailOn("CreateAccount", boom)

	_, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, f.stages[1].ID, f.currentStage(t, app.ID))
	assert.Empty(t, f.store.Logs(app.ID))
	assert.Equal(t, 0, f.notifier.count(), "no welcome for a rolled back hire")
}

func TestAdvanceToNext_WelcomeFailureKeepsHire(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	app := f.application(&f.stages[1])

	out, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	require.NoError(t, err)
	assert.True(t, out.UserCreated)
	assert.False(t, out.WelcomeSent)
	assert.Equal(t, f.stages[3].ID, f.currentStage(t, app.ID))
}

func TestAdvanceToNext_CommitUncertain(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[1])
	f.store.FailCommit(errors.New("connection reset"), true)

	_, err := f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
	assert.Equal(t, pipelineerr.KindCommitUncertain, pipelineerr.KindOf(err))
	assert.False(t, pipelineerr.Retryable(err))
	assert.Equal(t, 0, f.notifier.count(), "welcome is only sent for known commits")
}

func TestAdvanceToNext_ConcurrentCallsSerialize(t *testing.T) {
	f := newFixture(t)
	app := f.application(nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.AdvanceToNext(context.Background(), app.ID, f.actor)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, f.stages[1].ID, f.currentStage(t, app.ID))
	logs := f.store.Logs(app.ID)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[1].FromStageID)
	assert.Equal(t, logs[0].ToStageID, *logs[1].FromStageID)
}

func TestHire_ConcurrentApplicationsShareOneAccount(t *testing.T) {
	f := newFixture(t)
	apps := []db.Application{f.application(&f.stages[1]), f.application(&f.stages[1])}

	var wg sync.WaitGroup
	outs := make([]*Outcome, len(apps))
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.engine.AdvanceToNext(context.Background(), apps[i].ID, f.actor)
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, out := range outs {
		require.NotNil(t, out)
		if out.UserCreated {
			created++
		} else {
			assert.Equal(t, string(accounts.OutcomeAlreadyExists), out.UserStatus)
			assert.Equal(t, MsgHiredExisting, out.Message)
		}
	}
	assert.Equal(t, 1, created)

	matching := 0
	for _, a := range f.store.Accounts() {
		if a.Email == "jane@example.com" {
			matching++
		}
	}
	assert.Equal(t, 1, matching)
}

func TestSetStage_Regression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.application(&f.stages[1])

	hired, err := f.engine.AdvanceToNext(ctx, app.ID, f.actor)
	require.NoError(t, err)
	require.NotNil(t, hired.AccountID)

	note := "offer withdrawn"
	out, err := f.engine.SetStage(ctx, app.ID, f.stages[0].ID, f.actor, &note)
	require.NoError(t, err)
	assert.True(t, out.UserDeactivated)
	assert.Equal(t, MsgAccountDeactivate, out.Message)

	acct, _ := f.store.Account(*hired.AccountID)
	assert.False(t, acct.IsActive)

	logs := f.store.Logs(app.ID)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[1].Note)
	assert.Equal(t, note, *logs[1].Note)

	// Re-entering the final stage reactivates the same account.
	out, err = f.engine.SetStage(ctx, app.ID, f.stages[3].ID, f.actor, nil)
	require.NoError(t, err)
	assert.False(t, out.UserCreated)
	assert.True(t, out.UserReactivated)
	assert.Equal(t, *hired.AccountID, *out.AccountID)

	acct, _ = f.store.Account(*hired.AccountID)
	assert.True(t, acct.IsActive)
	assert.Len(t, f.store.Accounts(), 2, "recruiter plus one hire")
}

func TestSetStage_RegressionDeactivatesEveryLinkedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.application(&f.stages[3])
	first := f.store.AddAccount(db.Account{Email: "jane.first@example.com", CompanyID: f.company, LinkedCandidateID: &f.cand.ID, IsActive: true})
	second := f.store.AddAccount(db.Account{Email: "jane.second@example.com", CompanyID: f.company, LinkedCandidateID: &f.cand.ID, IsActive: true})

	out, err := f.engine.SetStage(ctx, app.ID, f.stages[1].ID, f.actor, nil)
	require.NoError(t, err)
	assert.True(t, out.UserDeactivated)
	require.NotNil(t, out.AccountID)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		acct, ok := f.store.Account(id)
		require.True(t, ok)
		assert.False(t, acct.IsActive, acct.Email)
	}
}

func TestSetStage_RegressionWithoutAccount(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[3])

	out, err := f.engine.SetStage(context.Background(), app.ID, f.stages[1].ID, f.actor, nil)
	require.NoError(t, err)
	assert.False(t, out.UserDeactivated)
	assert.Equal(t, MsgStageUpdated, out.Message)
}

func TestSetStage_SameStageIsNoOp(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[1])

	out, err := f.engine.SetStage(context.Background(), app.ID, f.stages[1].ID, f.actor, nil)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Empty(t, f.store.Logs(app.ID))
}

func TestSetStage_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.application(&f.stages[0])
	other := f.store.AddStage(db.Stage{CompanyID: uuid.New(), Name: "Elsewhere", Order: 1, IsActive: true, Type: db.StageTypeHiring})

	tests := []struct {
		name  string
		stage uuid.UUID
		note  *string
		kind  pipelineerr.Kind
	}{
		{"other company", other.ID, nil, pipelineerr.KindConfiguration},
		{"inactive stage", f.stages[2].ID, nil, pipelineerr.KindConfiguration},
		{"unknown stage", uuid.New(), nil, pipelineerr.KindNotFound},
		{"nil stage", uuid.Nil, nil, pipelineerr.KindValidation},
		{"note too long", f.stages[1].ID, strPtr(strings.Repeat("x", MaxNoteLength+1)), pipelineerr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SetStage(ctx, app.ID, tt.stage, f.actor, tt.note)
			assert.Equal(t, tt.kind, pipelineerr.KindOf(err))
		})
	}
	assert.Equal(t, f.stages[0].ID, f.currentStage(t, app.ID))
	assert.Empty(t, f.store.Logs(app.ID))
}

func TestSetStage_NoteAtLimitAccepted(t *testing.T) {
	f := newFixture(t)
	app := f.application(&f.stages[0])
	note := strings.Repeat("x", MaxNoteLength)

	out, err := f.engine.SetStage(context.Background(), app.ID, f.stages[1].ID, f.actor, &note)
	require.NoError(t, err)
	assert.True(t, out.Changed)
}

func TestSetStage_JumpToFinalHires(t *testing.T) {
	f := newFixture(t)
	app := f.application(nil)

	out, err := f.engine.SetStage(context.Background(), app.ID, f.stages[3].ID, f.actor, nil)
	require.NoError(t, err)
	assert.True(t, out.UserCreated)
	assert.Equal(t, MsgHiredCreated, out.Message)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, out, err := f.engine.Enroll(ctx, f.cand.ID, uuid.New(), f.company, f.actor)
	require.NoError(t, err)
	require.NotNil(t, app.CurrentStageID)
	assert.Equal(t, f.stages[0].ID, *app.CurrentStageID)
	assert.Equal(t, MsgEnrolled, out.Message)
	assert.Len(t, f.store.Logs(app.ID), 1)

	_, _, err = f.engine.Enroll(ctx, uuid.New(), uuid.New(), f.company, f.actor)
	assert.Equal(t, pipelineerr.KindNotFound, pipelineerr.KindOf(err))
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	f.engine = NewEngine(f.store,
		accounts.NewProvisioner(&config.PasswordConfig{BcryptCost: bcrypt.MinCost}, nil),
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}))
	app := f.application(nil)

	_, err := f.engine.AdvanceToNext(ctx, app.ID, f.actor)
	require.NoError(t, err)
	_, err = f.engine.SetStage(ctx, app.ID, f.stages[3].ID, f.actor, strPtr("fast track"))
	require.NoError(t, err)

	history, err := f.engine.History(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, LabelInitialStage, history[0].FromStage)
	assert.Equal(t, "Applied", history[0].ToStage)
	assert.False(t, history[0].IsHireAction)
	assert.Equal(t, "Rita Recruiter", history[0].ChangedBy)

	assert.Equal(t, "Applied", history[1].FromStage)
	assert.Equal(t, "Hired", history[1].ToStage)
	assert.True(t, history[1].IsHireAction)
	assert.True(t, history[1].ChangedAt.After(history[0].ChangedAt))

	_, err = f.engine.History(ctx, uuid.New())
	assert.Equal(t, pipelineerr.KindNotFound, pipelineerr.KindOf(err))
}

func TestFinalStageStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unset := f.application(nil)
	st, err := f.engine.FinalStageStatus(ctx, unset.ID)
	require.NoError(t, err)
	assert.False(t, st.IsFinalStage)
	assert.Nil(t, st.CurrentStageOrder)
	assert.Equal(t, f.stages[3].ID, st.FinalStage.ID)

	final := f.application(&f.stages[3])
	st, err = f.engine.FinalStageStatus(ctx, final.ID)
	require.NoError(t, err)
	assert.True(t, st.IsFinalStage)
	assert.Equal(t, 4, *st.CurrentStageOrder)

	available, err := f.engine.AvailableStages(ctx, final.ID)
	require.NoError(t, err)
	assert.Len(t, available, 3)
}

func strPtr(s string) *string { return &s }
