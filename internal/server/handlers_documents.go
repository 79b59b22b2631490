package server

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/jonathan/staffing-pipeline/internal/documents"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// SendLinksResponse is the body of POST /applications/{id}/documents/links/send
type SendLinksResponse struct {
	*documents.LinkBatch
	Email *documents.SendResult `json:"email"`
}

// handleStageDocuments handles GET /applications/{id}/documents
func (s *Server) handleStageDocuments(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := s.documents.StageDocuments(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, docs)
}

// handleCompletionStatus handles GET /applications/{id}/documents/status
func (s *Server) handleCompletionStatus(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.documents.CompletionStatus(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleFilledDocuments handles GET /applications/{id}/documents/filled
func (s *Server) handleFilledDocuments(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filled, err := s.documents.FilledDocuments(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"application_id":   appID,
		"filled_documents": filled,
		"count":            len(filled),
	})
}

func (s *Server) issueLinks(r *http.Request, documentIDs []string, expiryDays int) (*documents.LinkBatch, error) {
	appID, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	ids, err := types.ParseUUIDs("document_ids", documentIDs)
	if err != nil {
		return nil, err
	}
	return s.documents.IssueLinks(r.Context(), appID, ids, expiryDays)
}

// handleIssueLinks handles POST /applications/{id}/documents/links
func (s *Server) handleIssueLinks(w http.ResponseWriter, r *http.Request) {
	var req types.IssueLinksRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	batch, err := s.issueLinks(r, req.DocumentIDs, req.ExpiryDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, batch)
}

// handleSendLinks handles POST /applications/{id}/documents/links/send.
// Links are issued first; a failed email still returns them.
func (s *Server) handleSendLinks(w http.ResponseWriter, r *http.Request) {
	var req types.SendLinksRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	batch, err := s.issueLinks(r, req.DocumentIDs, req.ExpiryDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appID, _ := pathUUID(r, "id")
	if len(batch.Links) == 0 {
		writeError(w, r, &pipelineerr.ValidationError{Field: "document_ids", Message: "current stage has no documents"})
		return
	}

	result, err := s.documents.SendLinks(r.Context(), appID, batch.Links, req.CustomMessage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, SendLinksResponse{LinkBatch: batch, Email: result})
}

// handleShowDocumentLink handles GET /documents/{token}
func (s *Server) handleShowDocumentLink(w http.ResponseWriter, r *http.Request) {
	view, err := s.documents.Show(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// handleSubmitDocument handles POST /documents/{token}/submit. The filled
// PDF must arrive in the "file" part of a multipart body.
func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		writeError(w, r, &pipelineerr.ValidationError{Field: "file", Message: "a multipart PDF upload is required"})
		return
	}
	s.submitUpload(w, r, r.PathValue("token"))
}

func (s *Server) submitUpload(w http.ResponseWriter, r *http.Request, token string) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, &pipelineerr.ValidationError{Field: "file", Message: "invalid multipart body"})
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, &pipelineerr.ValidationError{Field: "file", Message: "is required"})
			return
		}
		if err != nil {
			writeError(w, r, &pipelineerr.ValidationError{Field: "file", Message: "invalid multipart body"})
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		sub, err := s.documents.SubmitUpload(r.Context(), token, part.FileName(), part)
		part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, sub)
		return
	}
}

// handleServeFile handles GET /files/{ref...}
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		http.NotFound(w, r)
		return
	}
	f, err := s.files.Open(r.PathValue("ref"))
	if err != nil {
		writeError(w, r, &pipelineerr.NotFoundError{Resource: "file", ID: r.PathValue("ref")})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("[files] failed to stream %s: %v", r.PathValue("ref"), err)
	}
}
