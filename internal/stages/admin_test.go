package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/db/dbtest"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/schemas"
)

func boolPtr(b bool) *bool { return &b }

func TestCreateDefaultStages(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	w4 := s.AddDocument(db.Document{Code: "W-4", Name: "W-4"})
	s.AddDocument(db.Document{Code: "1020", Name: "Application"})

	created, err := NewAdmin(s).CreateDefaultStages(ctx, company)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "Pre-Hire", created[0].Name)
	assert.Equal(t, 1, created[0].Order)
	assert.Equal(t, db.StageTypeOnboarding, created[1].Type)

	err = s.InTx(ctx, func(q db.Queries) error {
		docs, err := q.ListStageDocuments(ctx, created[1].ID)
		require.NoError(t, err)
		require.Len(t, docs, 1, "unknown codes are skipped")
		assert.Equal(t, w4.ID, docs[0].ID)
		assert.True(t, docs[0].IsRequired)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateStage_RejectsDuplicateActiveOrder(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	admin := NewAdmin(s)

	_, err := admin.CreateStage(ctx, company, StageSpec{Name: "Applied", Type: db.StageTypeHiring, Order: 1})
	require.NoError(t, err)

	_, err = admin.CreateStage(ctx, company, StageSpec{Name: "Screen", Type: db.StageTypeHiring, Order: 1})
	assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))

	// An inactive stage may share the order.
	_, err = admin.CreateStage(ctx, company, StageSpec{Name: "Screen", Type: db.StageTypeHiring, Order: 1, IsActive: boolPtr(false)})
	require.NoError(t, err)

	// Other companies are independent.
	_, err = admin.CreateStage(ctx, uuid.New(), StageSpec{Name: "Applied", Type: db.StageTypeHiring, Order: 1})
	require.NoError(t, err)
}

func TestStageWrites_LockCompanyStages(t *testing.T) {
	ctx := context.Background()
	name := "Renamed"
	order := 5

	writes := map[string]func(a *Admin, company uuid.UUID, st []db.Stage) error{
		"apply": func(a *Admin, company uuid.UUID, _ []db.Stage) error {
			_, err := a.Apply(ctx, company, []StageSpec{{Name: "Extra", Type: db.StageTypeHiring, Order: 3}}, false)
			return err
		},
		"create": func(a *Admin, company uuid.UUID, _ []db.Stage) error {
			_, err := a.CreateStage(ctx, company, StageSpec{Name: "Extra", Type: db.StageTypeHiring, Order: 3})
			return err
		},
		"update": func(a *Admin, company uuid.UUID, st []db.Stage) error {
			_, err := a.UpdateStage(ctx, company, st[1].ID, StageUpdate{Name: &name, Order: &order})
			return err
		},
		"reorder": func(a *Admin, company uuid.UUID, st []db.Stage) error {
			_, err := a.ReorderStages(ctx, company, []StageOrder{{ID: st[0].ID, Order: 2}, {ID: st[1].ID, Order: 1}})
			return err
		},
		"delete": func(a *Admin, company uuid.UUID, st []db.Stage) error {
			return a.DeleteStage(ctx, company, st[1].ID)
		},
	}

	for op, write := range writes {
		t.Run(op, func(t *testing.T) {
			s := dbtest.New()
			company := uuid.New()
			st := seedStages(s, company,
				db.Stage{Name: "Applied", Order: 1, IsActive: true},
				db.Stage{Name: "Interview", Order: 2, IsActive: true},
			)
			admin := NewAdmin(s)

			require.NoError(t, write(admin, company, st))
			assert.Equal(t, 1, s.StageLocks(company))

			// Without the lock nothing is read or written.
			s2 := dbtest.New()
			st2 := seedStages(s2, company,
				db.Stage{Name: "Applied", Order: 1, IsActive: true},
				db.Stage{Name: "Interview", Order: 2, IsActive: true},
			)
			lockErr := errors.New("lock timeout")
			s2.FailOn("LockCompanyStages", lockErr)
			s2.FailOn("ListActiveStages", errors.New("read before lock"))
			s2.FailOn("GetStage", errors.New("read before lock"))

			err := write(NewAdmin(s2), company, st2)
			assert.ErrorIs(t, err, lockErr)
			s2.ClearFailures()
			stages, err := NewAdmin(s2).List(ctx, company, true)
			require.NoError(t, err)
			require.Len(t, stages, 2)
			assert.Equal(t, "Interview", stages[1].Name)
			assert.Equal(t, 2, stages[1].Order)
		})
	}
}

func TestCreateStage_Validation(t *testing.T) {
	admin := NewAdmin(dbtest.New())
	ctx := context.Background()

	tests := []struct {
		name string
		spec StageSpec
	}{
		{"empty name", StageSpec{Name: "  ", Type: db.StageTypeHiring, Order: 1}},
		{"bad type", StageSpec{Name: "X", Type: "final", Order: 1}},
		{"document without code", StageSpec{Name: "X", Type: db.StageTypeCustom, Order: 1, Documents: []DocumentSpec{{Order: 1}}}},
		{"document order zero", StageSpec{Name: "X", Type: db.StageTypeCustom, Order: 1, Documents: []DocumentSpec{{Code: "W-4"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := admin.CreateStage(ctx, uuid.New(), tt.spec)
			assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
		})
	}
}

func TestCreateStage_UnknownDocumentCodeRollsBack(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	admin := NewAdmin(s)

	_, err := admin.CreateStage(ctx, company, StageSpec{
		Name: "Docs", Type: db.StageTypeCustom, Order: 1,
		Documents: []DocumentSpec{{Code: "nope", IsRequired: true, Order: 1}},
	})
	assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))

	all, err := admin.List(ctx, company, true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateStage(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company,
		db.Stage{Name: "Applied", Order: 1, IsActive: true},
		db.Stage{Name: "Interview", Order: 2, IsActive: true},
	)
	admin := NewAdmin(s)

	name := "Phone Screen"
	updated, err := admin.UpdateStage(ctx, company, st[1].ID, StageUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Phone Screen", updated.Name)

	order := 1
	_, err = admin.UpdateStage(ctx, company, st[1].ID, StageUpdate{Order: &order})
	assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))

	_, err = admin.UpdateStage(ctx, uuid.New(), st[1].ID, StageUpdate{Name: &name})
	assert.Equal(t, pipelineerr.KindNotFound, pipelineerr.KindOf(err), "stage of another company")
}

func TestUpdateStage_DisableWithActiveApplicationsRefused(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company, db.Stage{Name: "Applied", Order: 1, IsActive: true})
	s.AddApplication(db.Application{CompanyID: company, CurrentStageID: &st[0].ID})
	admin := NewAdmin(s)

	_, err := admin.UpdateStage(ctx, company, st[0].ID, StageUpdate{IsActive: boolPtr(false)})
	assert.Equal(t, pipelineerr.KindPolicy, pipelineerr.KindOf(err))
	assert.Contains(t, err.Error(), "1 active candidate(s)")
}

func TestReorderStages(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company,
		db.Stage{Name: "A", Order: 1, IsActive: true},
		db.Stage{Name: "B", Order: 2, IsActive: true},
		db.Stage{Name: "C", Order: 3, IsActive: true},
	)
	admin := NewAdmin(s)

	// Swapping is fine even though the first write collides transiently.
	result, err := admin.ReorderStages(ctx, company, []StageOrder{{ID: st[0].ID, Order: 2}, {ID: st[1].ID, Order: 1}})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, st[1].ID, result[0].ID)

	// A final duplicate rolls everything back.
	_, err = admin.ReorderStages(ctx, company, []StageOrder{{ID: st[2].ID, Order: 1}})
	assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))

	p, err := admin.Check(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Final().Order)

	_, err = admin.ReorderStages(ctx, company, nil)
	assert.Equal(t, pipelineerr.KindValidation, pipelineerr.KindOf(err))
}

func TestDeleteStage_Policy(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company,
		db.Stage{Name: "Applied", Order: 1, IsActive: true},
		db.Stage{Name: "Interview", Order: 2, IsActive: true},
		db.Stage{Name: "Unused", Order: 3, IsActive: true},
	)
	admin := NewAdmin(s)

	app := s.AddApplication(db.Application{CompanyID: company, CurrentStageID: &st[0].ID, Status: db.ApplicationStatusRejected})

	// Referenced directly.
	err := admin.DeleteStage(ctx, company, st[0].ID)
	assert.Equal(t, pipelineerr.KindPolicy, pipelineerr.KindOf(err))

	// Referenced only through history.
	require.NoError(t, s.InTx(ctx, func(q db.Queries) error {
		return q.AppendTransitionLog(ctx, &db.TransitionLogEntry{ApplicationID: app.ID, FromStageID: &st[1].ID, ToStageID: st[0].ID})
	}))
	info, err := admin.SafetyInfo(ctx, company, st[1].ID)
	require.NoError(t, err)
	assert.False(t, info.HasApplications)
	assert.Equal(t, 1, info.LogReferenceCount)
	assert.False(t, info.CanSafelyDelete)
	assert.True(t, info.CanDisable)
	assert.NotEmpty(t, info.Warning)

	err = admin.DeleteStage(ctx, company, st[1].ID)
	assert.Equal(t, pipelineerr.KindPolicy, pipelineerr.KindOf(err))

	info, err = admin.SafetyInfo(ctx, company, st[2].ID)
	require.NoError(t, err)
	assert.True(t, info.CanSafelyDelete)
	require.NoError(t, admin.DeleteStage(ctx, company, st[2].ID))

	err = admin.DeleteStage(ctx, company, st[2].ID)
	assert.Equal(t, pipelineerr.KindNotFound, pipelineerr.KindOf(err))
}

func TestSetStageDocuments(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company, db.Stage{Name: "Onboarding", Order: 1, IsActive: true})
	s.AddDocument(db.Document{Code: "I-9", Name: "I-9"})
	s.AddDocument(db.Document{Code: "W-4", Name: "W-4"})
	s.AddApplication(db.Application{CompanyID: company, CurrentStageID: &st[0].ID})

	affected, err := NewAdmin(s).SetStageDocuments(ctx, company, st[0].ID, []DocumentSpec{
		{Code: "W-4", IsRequired: true, Order: 2},
		{Code: "I-9", IsRequired: false, Order: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	err = s.InTx(ctx, func(q db.Queries) error {
		docs, err := q.ListStageDocuments(ctx, st[0].ID)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "I-9", docs[0].Code)
		return nil
	})
	require.NoError(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	company := uuid.New()
	valid := write("valid.json", `{
  "company_id": "`+company.String()+`",
  "stages": [
    {"name": "Pre-Hire", "type": "hiring", "order": 1,
     "documents": [{"code": "1020", "is_required": true, "order": 1}]},
    {"name": "Onboarding", "type": "onboarding", "order": 2}
  ]
}`)
	cfg, err := LoadConfigFile(valid)
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 2)
	id, ok := cfg.Company()
	assert.True(t, ok)
	assert.Equal(t, company, id)
	assert.Equal(t, "1020", cfg.Stages[0].Documents[0].Code)

	badType := write("bad_type.json", `{"stages": [{"name": "X", "type": "final", "order": 1}]}`)
	_, err = LoadConfigFile(badType)
	var schemaErr *schemas.ValidationError
	assert.ErrorAs(t, err, &schemaErr)

	dup := write("dup.json", `{"stages": [
    {"name": "A", "type": "hiring", "order": 1},
    {"name": "B", "type": "hiring", "order": 1}
  ]}`)
	_, err = LoadConfigFile(dup)
	assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))

	dupInactive := write("dup_inactive.json", `{"stages": [
    {"name": "A", "type": "hiring", "order": 1},
    {"name": "B", "type": "hiring", "order": 1, "is_active": false}
  ]}`)
	_, err = LoadConfigFile(dupInactive)
	assert.NoError(t, err)
}
