package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/staffing-pipeline/internal/hours"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// periodFromQuery reads ?period=today|week|month|quarter|year or
// ?start_date=&end_date= (YYYY-MM-DD, inclusive). Neither means all time.
func (s *Server) periodFromQuery(r *http.Request) (*hours.Period, error) {
	q := r.URL.Query()
	loc := s.hours.Location()
	if name := q.Get("period"); name != "" {
		return hours.PeriodPreset(name, time.Now().In(loc))
	}
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" && end == "" {
		return nil, nil
	}
	return hours.DateRange(start, end, loc)
}

// handleWorkerSummary handles GET /candidates/{id}/time/summary
func (s *Server) handleWorkerSummary(w http.ResponseWriter, r *http.Request) {
	workerID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := s.periodFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.hours.Summary(r.Context(), workerID, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"candidate_id": workerID,
		"period":       period,
		"summary":      summary,
	})
}

// handleWorkerReport handles GET /candidates/{id}/time/report
func (s *Server) handleWorkerReport(w http.ResponseWriter, r *http.Request) {
	workerID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.report(w, r, hours.Query{WorkerID: &workerID})
}

// handleJobReport handles GET /jobs/{id}/time/report
func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.report(w, r, hours.Query{JobID: &jobID})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request, query hours.Query) {
	period, err := s.periodFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query.Period = period
	report, err := s.hours.Report(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleLineItems handles GET /candidates/{id}/time/line-items?rate=
func (s *Server) handleLineItems(w http.ResponseWriter, r *http.Request) {
	workerID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := s.periodFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var rate float64
	if raw := r.URL.Query().Get("rate"); raw != "" {
		rate, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) {
			writeError(w, r, &pipelineerr.ValidationError{Field: "rate", Message: "must be a number"})
			return
		}
	}

	items, err := s.hours.LineItems(r.Context(), workerID, period, rate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var total float64
	for _, it := range items {
		total += it.Amount
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"candidate_id": workerID,
		"line_items":   items,
		"total_amount": total,
	})
}
