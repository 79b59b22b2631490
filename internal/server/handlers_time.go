package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/timetrack"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// TimeLogResponse wraps a time segment snapshot. Active is false once the
// segment is completed or when the job has no open segment.
type TimeLogResponse struct {
	Active  bool                `json:"active"`
	TimeLog *timetrack.Snapshot `json:"time_log"`
}

func (s *Server) respondSnapshot(w http.ResponseWriter, status int, snap *timetrack.Snapshot) {
	active := snap != nil && snap.Status != db.SegmentCompleted
	s.jsonResponse(w, status, TimeLogResponse{Active: active, TimeLog: snap})
}

func (s *Server) timeTransition(w http.ResponseWriter, r *http.Request, status int, fn func(jobID uuid.UUID, note *string) (*timetrack.Snapshot, error)) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.TimeNoteRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := fn(jobID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondSnapshot(w, status, snap)
}

// handleTimeStart handles POST /jobs/{id}/time/start
func (s *Server) handleTimeStart(w http.ResponseWriter, r *http.Request) {
	s.timeTransition(w, r, http.StatusCreated, func(jobID uuid.UUID, _ *string) (*timetrack.Snapshot, error) {
		return s.timer.Start(r.Context(), jobID)
	})
}

// handleTimePause handles POST /jobs/{id}/time/pause
func (s *Server) handleTimePause(w http.ResponseWriter, r *http.Request) {
	s.timeTransition(w, r, http.StatusOK, func(jobID uuid.UUID, note *string) (*timetrack.Snapshot, error) {
		return s.timer.Pause(r.Context(), jobID, note)
	})
}

// handleTimeResume handles POST /jobs/{id}/time/resume
func (s *Server) handleTimeResume(w http.ResponseWriter, r *http.Request) {
	s.timeTransition(w, r, http.StatusOK, func(jobID uuid.UUID, _ *string) (*timetrack.Snapshot, error) {
		return s.timer.Resume(r.Context(), jobID)
	})
}

// handleTimeStop handles POST /jobs/{id}/time/stop
func (s *Server) handleTimeStop(w http.ResponseWriter, r *http.Request) {
	s.timeTransition(w, r, http.StatusOK, func(jobID uuid.UUID, note *string) (*timetrack.Snapshot, error) {
		return s.timer.Stop(r.Context(), jobID, note)
	})
}

// handleTimeCurrent handles GET /jobs/{id}/time/current
func (s *Server) handleTimeCurrent(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.timer.Current(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondSnapshot(w, http.StatusOK, snap)
}

// handleTimeLogs handles GET /jobs/{id}/time/logs
func (s *Server) handleTimeLogs(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	logs, err := s.timer.Logs(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id":    jobID,
		"time_logs": logs,
		"count":     len(logs),
	})
}
