package server

import (
	"net/http"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/transition"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// EnrollResponse is the body of a successful enrollment
type EnrollResponse struct {
	Application *db.Application     `json:"application"`
	Outcome     *transition.Outcome `json:"outcome"`
}

// handleEnroll handles POST /applications
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.EnrollRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	candidateID, err := types.ParseUUID("candidate_id", req.CandidateID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jobID, err := types.ParseUUID("job_id", req.JobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	companyID, err := types.ParseUUID("company_id", req.CompanyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	app, outcome, err := s.transitions.Enroll(r.Context(), candidateID, jobID, companyID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, EnrollResponse{Application: app, Outcome: outcome})
}

// handleAdvance handles POST /applications/{id}/advance
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := s.transitions.AdvanceToNext(r.Context(), appID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, outcome)
}

// handleSetStage handles POST /applications/{id}/stage
func (s *Server) handleSetStage(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.SetStageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	stageID, err := types.ParseUUID("stage_id", req.StageID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := s.transitions.SetStage(r.Context(), appID, stageID, actor, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, outcome)
}

// handleStageHistory handles GET /applications/{id}/stages/history
func (s *Server) handleStageHistory(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := s.transitions.History(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"application_id": appID,
		"history":        history,
		"count":          len(history),
	})
}

// handleFinalStageStatus handles GET /applications/{id}/stages/final-status
func (s *Server) handleFinalStageStatus(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.transitions.FinalStageStatus(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleAvailableStages handles GET /applications/{id}/stages/available
func (s *Server) handleAvailableStages(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	available, err := s.transitions.AvailableStages(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"application_id": appID,
		"stages":         available,
		"count":          len(available),
	})
}
