package server

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/transition"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

func TestEnroll_AdvanceToHire(t *testing.T) {
	h := newHarness(t, nil)

	enrolled := h.enroll()
	require.NotNil(t, enrolled.Outcome)
	assert.Equal(t, "Applied", enrolled.Outcome.NewStageName)
	assert.False(t, enrolled.Outcome.IsFinalStage)
	appID := enrolled.Application.ID.String()

	w := h.do(http.MethodPost, "/applications/"+appID+"/advance", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Interview", decodeBody[transition.Outcome](t, w).NewStageName)

	w = h.do(http.MethodPost, "/applications/"+appID+"/advance", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hired := decodeBody[transition.Outcome](t, w)
	assert.True(t, hired.IsFinalStage)
	assert.True(t, hired.UserCreated)
	assert.True(t, hired.WelcomeSent)
	require.NotNil(t, hired.AccountID)
	require.Len(t, h.welcomes.sent, 1)
	assert.Equal(t, "jane@example.com", h.welcomes.sent[0].Email)

	w = h.do(http.MethodPost, "/applications/"+appID+"/advance", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "already_final", body["error"])
	assert.Equal(t, false, body["retryable"])

	w = h.do(http.MethodGet, "/applications/"+appID+"/stages/history", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	history := decodeBody[struct {
		History []transition.HistoryEntry `json:"history"`
		Count   int                       `json:"count"`
	}](t, w)
	require.Equal(t, 3, history.Count)
	assert.Equal(t, transition.LabelInitialStage, history.History[0].FromStage)
	assert.Equal(t, "Rita Recruiter", history.History[0].ChangedBy)
	assert.True(t, history.History[2].IsHireAction)

	w = h.do(http.MethodGet, "/applications/"+appID+"/stages/final-status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, w)["is_final_stage"])
}

func TestSetStage_BackFromFinalDeactivates(t *testing.T) {
	h := newHarness(t, nil)
	appID := h.enroll().Application.ID.String()

	w := h.do(http.MethodPost, "/applications/"+appID+"/stage", types.SetStageRequest{StageID: h.stages[2].ID.String()}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, decodeBody[transition.Outcome](t, w).UserCreated)

	note := "Offer withdrawn"
	w = h.do(http.MethodPost, "/applications/"+appID+"/stage", types.SetStageRequest{StageID: h.stages[0].ID.String(), Note: &note}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody[transition.Outcome](t, w)
	assert.True(t, out.UserDeactivated)
	assert.Equal(t, "Applied", out.NewStageName)
}

func TestApplicationRoutes_Errors(t *testing.T) {
	h := newHarness(t, nil)
	appID := h.enroll().Application.ID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
		wantField  string
	}{
		{"bad application id", http.MethodPost, "/applications/nope/advance", nil, http.StatusBadRequest, "validation_error", "id"},
		{"unknown application", http.MethodPost, "/applications/" + uuid.NewString() + "/advance", nil, http.StatusNotFound, "not_found", ""},
		{"stage id not a uuid", http.MethodPost, "/applications/" + appID + "/stage", types.SetStageRequest{StageID: "x"}, http.StatusBadRequest, "validation_error", "stage_id"},
		{"stage of another company", http.MethodPost, "/applications/" + appID + "/stage", types.SetStageRequest{StageID: uuid.NewString()}, http.StatusNotFound, "not_found", ""},
		{"enroll missing candidate", http.MethodPost, "/applications", types.EnrollRequest{JobID: uuid.NewString(), CompanyID: uuid.NewString()}, http.StatusBadRequest, "validation_error", "candidate_id"},
		{"enroll unknown candidate", http.MethodPost, "/applications", types.EnrollRequest{CandidateID: uuid.NewString(), JobID: uuid.NewString(), CompanyID: h.company.String()}, http.StatusNotFound, "not_found", ""},
		{"enroll company without stages", http.MethodPost, "/applications", types.EnrollRequest{CandidateID: h.cand.ID.String(), JobID: uuid.NewString(), CompanyID: uuid.NewString()}, http.StatusUnprocessableEntity, "configuration_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path, tt.body, true)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decodeBody[map[string]any](t, w)
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body["field"])
			}
		})
	}
}

func TestAvailableStages(t *testing.T) {
	h := newHarness(t, nil)
	appID := h.enroll().Application.ID.String()

	w := h.do(http.MethodGet, "/applications/"+appID+"/stages/available", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decodeBody[map[string]any](t, w)["count"])
}
