package stages

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/db/dbtest"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

func seedStages(s *dbtest.Store, companyID uuid.UUID, stages ...db.Stage) []db.Stage {
	out := make([]db.Stage, len(stages))
	for i, st := range stages {
		st.CompanyID = companyID
		if st.Type == "" {
			st.Type = db.StageTypeHiring
		}
		out[i] = s.AddStage(st)
	}
	return out
}

func loadPipeline(t *testing.T, s *dbtest.Store, companyID uuid.UUID) (*Pipeline, error) {
	t.Helper()
	var p *Pipeline
	err := s.InTx(context.Background(), func(q db.Queries) error {
		var err error
		p, err = Load(context.Background(), q, companyID)
		return err
	})
	return p, err
}

func TestPipeline_NextAndFinal(t *testing.T) {
	s := dbtest.New()
	company := uuid.New()
	st := seedStages(s, company,
		db.Stage{Name: "Applied", Order: 1, IsActive: true},
		db.Stage{Name: "Archived", Order: 2, IsActive: false},
		db.Stage{Name: "Interview", Order: 5, IsActive: true},
		db.Stage{Name: "Hired", Order: 9, IsActive: true},
	)
	// A different company's stages never leak in.
	seedStages(s, uuid.New(), db.Stage{Name: "Other", Order: 3, IsActive: true})

	p, err := loadPipeline(t, s, company)
	require.NoError(t, err)
	require.Len(t, p.Stages, 3)

	assert.Equal(t, st[2].ID, p.Next(1).ID, "inactive stage is skipped")
	assert.Equal(t, st[3].ID, p.Next(5).ID)
	assert.Nil(t, p.Next(9))
	assert.Equal(t, st[0].ID, p.Next(-10).ID)

	assert.False(t, p.IsFinal(1))
	assert.False(t, p.IsFinal(5))
	assert.True(t, p.IsFinal(9))
	assert.True(t, p.IsFinal(100))

	assert.Equal(t, st[0].ID, p.First().ID)
	assert.Equal(t, st[3].ID, p.Final().ID)
	assert.Nil(t, p.Find(st[1].ID), "inactive stage is not part of the pipeline")
	assert.NotNil(t, p.Find(st[2].ID))
}

func TestPipeline_FinalMeansNothingAfter(t *testing.T) {
	s := dbtest.New()
	company := uuid.New()
	seedStages(s, company,
		db.Stage{Name: "A", Order: 3, IsActive: true},
		db.Stage{Name: "B", Order: 1, IsActive: true},
		db.Stage{Name: "C", Order: 7, IsActive: true},
		db.Stage{Name: "D", Order: 8, IsActive: false},
	)
	p, err := loadPipeline(t, s, company)
	require.NoError(t, err)

	for _, stage := range p.Stages {
		if !p.IsFinal(stage.Order) {
			continue
		}
		for _, other := range p.Stages {
			assert.LessOrEqual(t, other.Order, stage.Order)
		}
	}
}

func TestLoad_DuplicateActiveOrderIsConfigurationError(t *testing.T) {
	s := dbtest.New()
	company := uuid.New()
	seedStages(s, company,
		db.Stage{Name: "A", Order: 1, IsActive: true},
		db.Stage{Name: "B", Order: 2, IsActive: true},
		db.Stage{Name: "C", Order: 2, IsActive: true},
	)

	_, err := loadPipeline(t, s, company)
	assert.Equal(t, pipelineerr.KindConfiguration, pipelineerr.KindOf(err))
}

func TestLoad_DuplicateOrderOnInactiveStageIsIgnored(t *testing.T) {
	s := dbtest.New()
	company := uuid.New()
	seedStages(s, company,
		db.Stage{Name: "A", Order: 1, IsActive: true},
		db.Stage{Name: "B", Order: 1, IsActive: false},
	)

	p, err := loadPipeline(t, s, company)
	require.NoError(t, err)
	assert.Len(t, p.Stages, 1)
}

func TestCatalogFunctions(t *testing.T) {
	s := dbtest.New()
	ctx := context.Background()
	company := uuid.New()
	st := seedStages(s, company,
		db.Stage{Name: "Pre-Hire", Order: 1, IsActive: true},
		db.Stage{Name: "Onboarding", Order: 2, IsActive: true, Type: db.StageTypeOnboarding},
	)

	err := s.InTx(ctx, func(q db.Queries) error {
		next, err := NextStage(ctx, q, company, 1)
		require.NoError(t, err)
		assert.Equal(t, st[1].ID, next.ID)

		next, err = NextStage(ctx, q, company, 2)
		require.NoError(t, err)
		assert.Nil(t, next)

		final, err := IsFinalStage(ctx, q, company, 2)
		require.NoError(t, err)
		assert.True(t, final)

		first, err := FirstStage(ctx, q, company)
		require.NoError(t, err)
		assert.Equal(t, st[0].ID, first.ID)

		first, err = FirstStage(ctx, q, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, first)
		return nil
	})
	require.NoError(t, err)
}

func TestIsHireStage(t *testing.T) {
	tests := []struct {
		stage *db.Stage
		want  bool
	}{
		{nil, false},
		{&db.Stage{Name: "Orientation", Type: db.StageTypeOnboarding}, true},
		{&db.Stage{Name: "Hired", Type: db.StageTypeCustom}, true},
		{&db.Stage{Name: " onboarding ", Type: db.StageTypeHiring}, true},
		{&db.Stage{Name: "Interview", Type: db.StageTypeHiring}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsHireStage(tt.stage))
	}
}
