package server

import (
	"net/http"

	"github.com/jonathan/staffing-pipeline/internal/server/middleware"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	accounts   *AccountService
	jwtService *JWTService
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(accounts *AccountService, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		jwtService: jwtService,
	}
}

// Login handles account login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.accounts.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(account)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.LoginResponse{
		Account:   toAccountDTO(account),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.GetActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account, err := h.accounts.Get(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}
