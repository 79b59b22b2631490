package server

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// PasswordVerifier checks stored credential hashes
type PasswordVerifier interface {
	VerifyPassword(pw, storedHash string) bool
	NeedsRehash(storedHash string) bool
}

// AccountService provides business logic for account authentication
type AccountService struct {
	store     db.Store
	passwords PasswordVerifier
}

// NewAccountService creates a new AccountService with the given dependencies
func NewAccountService(store db.Store, passwords PasswordVerifier) *AccountService {
	return &AccountService{
		store:     store,
		passwords: passwords,
	}
}

// toAccountDTO converts db.Account to types.Account, excluding the password hash
func toAccountDTO(a *db.Account) *types.Account {
	if a == nil {
		return nil
	}
	return &types.Account{
		ID:                a.ID,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		CompanyID:         a.CompanyID,
		LinkedCandidateID: a.LinkedCandidateID,
		IsActive:          a.IsActive,
		CreatedAt:         a.CreatedAt,
	}
}

// Login authenticates an account by email and password
func (s *AccountService) Login(ctx context.Context, req *types.LoginRequest) (*db.Account, error) {
	var account *db.Account
	err := s.store.InTx(ctx, func(q db.Queries) error {
		var err error
		account, err = q.GetAccountByEmail(ctx, db.NormalizeEmail(req.Email))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	// Security: Always return generic error if account not found or password wrong
	if account == nil || account.PasswordHash == "" {
		return nil, &ErrInvalidCredentials{}
	}
	if !s.passwords.VerifyPassword(req.Password, account.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}
	if !account.IsActive {
		return nil, &ErrAccountInactive{}
	}
	if s.passwords.NeedsRehash(account.PasswordHash) {
		log.Printf("[auth] account %s has a password hash below the configured cost", account.ID)
	}
	return account, nil
}

// Get returns the account with the given id
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*db.Account, error) {
	var account *db.Account
	err := s.store.InTx(ctx, func(q db.Queries) error {
		var err error
		account, err = q.GetAccount(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, pipelineerr.NotFound("account", id)
	}
	return account, nil
}
