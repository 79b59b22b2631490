package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/stages"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

func documentSpecs(reqs []types.DocumentRequirementRequest) []stages.DocumentSpec {
	specs := make([]stages.DocumentSpec, 0, len(reqs))
	for _, d := range reqs {
		specs = append(specs, stages.DocumentSpec{Code: d.Code, IsRequired: d.IsRequired, Order: d.Order})
	}
	return specs
}

func companyAndStage(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	stageID, err := pathUUID(r, "stage_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return companyID, stageID, nil
}

// handleListStages handles GET /companies/{company_id}/stages
func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	list, err := s.stages.List(r.Context(), companyID, includeInactive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"company_id": companyID,
		"stages":     list,
		"count":      len(list),
	})
}

// handleCheckStages handles GET /companies/{company_id}/stages/check
func (s *Server) handleCheckStages(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pipeline, err := s.stages.Check(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"company_id":   companyID,
		"valid":        true,
		"active_count": len(pipeline.Stages),
		"stages":       pipeline.Stages,
	}
	if final := pipeline.Final(); final != nil {
		resp["final_stage_id"] = final.ID
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleCreateStage handles POST /companies/{company_id}/stages
func (s *Server) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.CreateStageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	stage, err := s.stages.CreateStage(r.Context(), companyID, stages.StageSpec{
		Name:      req.Name,
		Type:      db.StageType(req.Type),
		Order:     req.Order,
		IsActive:  req.IsActive,
		Documents: documentSpecs(req.Documents),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, stage)
}

// handleCreateDefaultStages handles POST /companies/{company_id}/stages/defaults
func (s *Server) handleCreateDefaultStages(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.stages.CreateDefaultStages(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"company_id": companyID,
		"stages":     created,
		"count":      len(created),
	})
}

// handleUpdateStage handles PATCH /companies/{company_id}/stages/{stage_id}
func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	companyID, stageID, err := companyAndStage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.UpdateStageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	upd := stages.StageUpdate{Name: req.Name, Order: req.Order, IsActive: req.IsActive}
	if req.Type != nil {
		t := db.StageType(*req.Type)
		upd.Type = &t
	}
	stage, err := s.stages.UpdateStage(r.Context(), companyID, stageID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stage)
}

// handleSetStageDocuments handles PUT /companies/{company_id}/stages/{stage_id}/documents
func (s *Server) handleSetStageDocuments(w http.ResponseWriter, r *http.Request) {
	companyID, stageID, err := companyAndStage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.StageDocumentsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	count, err := s.stages.SetStageDocuments(r.Context(), companyID, stageID, documentSpecs(req.Documents))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"stage_id":        stageID,
		"documents_count": count,
	})
}

// handleReorderStages handles POST /companies/{company_id}/stages/reorder
func (s *Server) handleReorderStages(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathUUID(r, "company_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.ReorderStagesRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	orders := make([]stages.StageOrder, 0, len(req.Stages))
	for i, o := range req.Stages {
		id, err := types.ParseUUID("stages["+strconv.Itoa(i)+"].id", o.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		orders = append(orders, stages.StageOrder{ID: id, Order: o.Order})
	}

	reordered, err := s.stages.ReorderStages(r.Context(), companyID, orders)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"company_id": companyID,
		"stages":     reordered,
	})
}

// handleStageSafety handles GET /companies/{company_id}/stages/{stage_id}/safety
func (s *Server) handleStageSafety(w http.ResponseWriter, r *http.Request) {
	companyID, stageID, err := companyAndStage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.stages.SafetyInfo(r.Context(), companyID, stageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

// handleDeleteStage handles DELETE /companies/{company_id}/stages/{stage_id}
func (s *Server) handleDeleteStage(w http.ResponseWriter, r *http.Request) {
	companyID, stageID, err := companyAndStage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.stages.DeleteStage(r.Context(), companyID, stageID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
