// Package server provides the HTTP REST API for the staffing core.
package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/jonathan/staffing-pipeline/internal/files"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrAccountInactive indicates a deactivated account tried to log in
type ErrAccountInactive struct{}

func (e *ErrAccountInactive) Error() string {
	return "account is inactive"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		credErr     *ErrInvalidCredentials
		inactiveErr *ErrAccountInactive
	)
	switch {
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.As(err, &inactiveErr):
		return http.StatusForbidden
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, files.ErrNotPDF), errors.Is(err, files.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, files.ErrInvalidRef):
		return http.StatusNotFound
	}

	if pipelineerr.IsTimerReason(err, pipelineerr.ReasonAccountInactive) {
		return http.StatusForbidden
	}
	switch pipelineerr.KindOf(err) {
	case pipelineerr.KindValidation, pipelineerr.KindAlreadyFinal:
		return http.StatusBadRequest
	case pipelineerr.KindConfiguration:
		return http.StatusUnprocessableEntity
	case pipelineerr.KindNotFound, pipelineerr.KindInvalidToken:
		return http.StatusNotFound
	case pipelineerr.KindAccountConflict, pipelineerr.KindTimerState,
		pipelineerr.KindConcurrency, pipelineerr.KindPolicy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the JSON body for err
func errorBody(err error) types.ErrorResponse {
	kind := pipelineerr.KindOf(err)
	body := types.ErrorResponse{
		Error:     kind,
		Message:   err.Error(),
		Retryable: pipelineerr.Retryable(err),
	}

	switch {
	case errors.Is(err, files.ErrTooLarge), errors.Is(err, files.ErrNotPDF), errors.Is(err, files.ErrEmptyContent):
		body.Error = pipelineerr.KindValidation
		body.Field = "file"
	case errors.Is(err, files.ErrInvalidRef):
		body.Error = pipelineerr.KindNotFound
	}

	var (
		timerErr *pipelineerr.TimerStateError
		validErr *pipelineerr.ValidationError
		credErr  *ErrInvalidCredentials
		inactErr *ErrAccountInactive
	)
	switch {
	case errors.As(err, &timerErr):
		body.Reason = string(timerErr.Reason)
	case errors.As(err, &validErr):
		body.Field = validErr.Field
	case errors.As(err, &credErr), errors.As(err, &inactErr):
		body.Error = "unauthorized"
	}

	// Only an uncertain commit may have been applied.
	if kind != pipelineerr.KindCommitUncertain {
		applied := false
		body.Applied = &applied
	}
	if kind == pipelineerr.KindInternal && body.Error == pipelineerr.KindInternal {
		body.Message = "internal server error"
	}
	return body
}

// writeError writes err as a JSON error response
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody(err))
}

