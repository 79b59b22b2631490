// Package accounts provisions, links, deactivates and reactivates the login
// account tied to a candidate.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Outcome tells the caller how Hire resolved the account
type Outcome string

const (
	// OutcomeCreated means a new account was inserted
	OutcomeCreated Outcome = "created"
	// OutcomeAlreadyExists means an account with the email was linked instead
	OutcomeAlreadyExists Outcome = "already_exists"
)

// TempPasswordLength is the length of generated temporary credentials
const TempPasswordLength = 10

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Welcome is a pending welcome notification. It is only produced for newly
// created accounts and must be delivered after the transaction commits.
type Welcome struct {
	AccountID    string
	Email        string
	FirstName    string
	LastName     string
	TempPassword string
}

// HireResult is the typed result of Hire
type HireResult struct {
	Account     *db.Account
	Outcome     Outcome
	Reactivated bool
	Welcome     *Welcome
}

// Hasher turns a plaintext credential into a stored hash
type Hasher interface {
	HashPassword(pw string) (string, error)
}

// Notifier delivers the welcome message for a new account
type Notifier interface {
	SendWelcome(ctx context.Context, w Welcome) error
}

// Provisioner creates and toggles accounts. It holds no state of its own;
// every read and write goes through the caller's unit of work.
type Provisioner struct {
	hasher   Hasher
	notifier Notifier
}

// NewProvisioner creates a provisioner. notifier may be nil.
func NewProvisioner(hasher Hasher, notifier Notifier) *Provisioner {
	return &Provisioner{hasher: hasher, notifier: notifier}
}

// Hire makes sure the application's candidate has an active, linked account.
// An existing account with the candidate's email is linked and reactivated;
// otherwise a new one is created with a random temporary credential.
func (p *Provisioner) Hire(ctx context.Context, q db.Queries, app *db.Application) (*HireResult, error) {
	candidate, err := q.GetCandidate(ctx, app.CandidateID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, pipelineerr.NotFound("candidate", app.CandidateID)
	}
	email := db.NormalizeEmail(candidate.Email)
	if email == "" {
		return nil, &pipelineerr.ValidationError{Field: "email", Message: "candidate has no email address"}
	}

	existing, err := q.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.linkExisting(ctx, q, existing, candidate)
	}

	password, err := generateTempPassword(TempPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := p.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	candidateID := candidate.ID
	account := &db.Account{
		Email:             email,
		FirstName:         candidate.FirstName,
		LastName:          candidate.LastName,
		CompanyID:         app.CompanyID,
		LinkedCandidateID: &candidateID,
		PasswordHash:      hash,
		IsActive:          true,
	}
	if err := q.CreateAccount(ctx, account); err != nil {
		var conflict *pipelineerr.AccountConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		// Lost a race with another hire for the same email.
		existing, lookupErr := q.GetAccountByEmail(ctx, email)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, conflict
		}
		return p.linkExisting(ctx, q, existing, candidate)
	}

	log.Printf("[accounts] created account %s for candidate %s", account.ID, candidate.ID)
	return &HireResult{
		Account: account,
		Outcome: OutcomeCreated,
		Welcome: &Welcome{
			AccountID:    account.ID.String(),
			Email:        account.Email,
			FirstName:    account.FirstName,
			LastName:     account.LastName,
			TempPassword: password,
		},
	}, nil
}

func (p *Provisioner) linkExisting(ctx context.Context, q db.Queries, account *db.Account, candidate *db.Candidate) (*HireResult, error) {
	if account.LinkedCandidateID == nil || *account.LinkedCandidateID != candidate.ID {
		if err := q.LinkAccountToCandidate(ctx, account.ID, candidate.ID); err != nil {
			return nil, err
		}
		cid := candidate.ID
		account.LinkedCandidateID = &cid
	}

	result := &HireResult{Account: account, Outcome: OutcomeAlreadyExists}
	if !account.IsActive {
		if err := q.SetAccountActive(ctx, account.ID, true); err != nil {
			return nil, err
		}
		account.IsActive = true
		result.Reactivated = true
		log.Printf("[accounts] reactivated account %s for candidate %s", account.ID, candidate.ID)
	}
	return result, nil
}

// LinkedAccount finds the account that belongs to a candidate: the one linked
// to it, or failing that the one registered under the candidate's email.
func (p *Provisioner) LinkedAccount(ctx context.Context, q db.Queries, candidateID uuid.UUID) (*db.Account, error) {
	account, err := q.GetAccountByCandidate(ctx, candidateID)
	if err != nil || account != nil {
		return account, err
	}
	candidate, err := q.GetCandidate(ctx, candidateID)
	if err != nil || candidate == nil {
		return nil, err
	}
	if candidate.Email == "" {
		return nil, nil
	}
	return q.GetAccountByEmail(ctx, candidate.Email)
}

// Deactivate clears is_active. It reports whether anything changed.
func (p *Provisioner) Deactivate(ctx context.Context, q db.Queries, account *db.Account) (bool, error) {
	return setActive(ctx, q, account, false)
}

// DeactivateCandidate clears is_active on every account linked to the
// candidate, or on the account found by email when none is linked. It returns
// the candidate's account as LinkedAccount resolves it, and whether anything
// changed.
func (p *Provisioner) DeactivateCandidate(ctx context.Context, q db.Queries, candidateID uuid.UUID) (*db.Account, bool, error) {
	account, err := p.LinkedAccount(ctx, q, candidateID)
	if err != nil || account == nil {
		return nil, false, err
	}
	if account.LinkedCandidateID == nil || *account.LinkedCandidateID != candidateID {
		changed, err := p.Deactivate(ctx, q, account)
		return account, changed, err
	}

	ids, err := q.DeactivateCandidateAccounts(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}
	account.IsActive = false
	if len(ids) > 1 {
		log.Printf("[accounts] deactivated %d accounts linked to candidate %s", len(ids), candidateID)
	}
	return account, len(ids) > 0, nil
}

// Reactivate sets is_active. It reports whether anything changed.
func (p *Provisioner) Reactivate(ctx context.Context, q db.Queries, account *db.Account) (bool, error) {
	return setActive(ctx, q, account, true)
}

func setActive(ctx context.Context, q db.Queries, account *db.Account, active bool) (bool, error) {
	if account == nil {
		return false, nil
	}
	if account.IsActive == active {
		return false, nil
	}
	if err := q.SetAccountActive(ctx, account.ID, active); err != nil {
		return false, err
	}
	account.IsActive = active
	return true, nil
}

// DeliverWelcome sends a welcome notification. Failures are logged and
// swallowed; they never affect the hire that produced w.
func (p *Provisioner) DeliverWelcome(ctx context.Context, w *Welcome) bool {
	if w == nil || p.notifier == nil {
		return false
	}
	if err := p.notifier.SendWelcome(ctx, *w); err != nil {
		log.Printf("[accounts] failed to send welcome email to %s: %v", w.Email, err)
		return false
	}
	return true
}

func generateTempPassword(n int) (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate temporary password: %w", err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
