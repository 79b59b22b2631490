package documents

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// TokenLength is the number of characters in a document token
const TokenLength = 60

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenPrefix   = "candidate_doc_token_"
)

// TokenPayload is what a document token grants access to
type TokenPayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
	CandidateID   uuid.UUID `json:"candidate_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TokenStore is an ephemeral keyed store with expiry. Get returns (nil, nil)
// for tokens that are unknown or past their expiry.
type TokenStore interface {
	Put(ctx context.Context, token string, payload TokenPayload) error
	Get(ctx context.Context, token string) (*TokenPayload, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// BadgerTokenStore keeps tokens in badger entries carrying a native TTL.
// Expiry is also checked against the store clock on read.
type BadgerTokenStore struct {
	db  *badger.DB
	now func() time.Time
}

// TokenStoreOption customizes a BadgerTokenStore
type TokenStoreOption func(*BadgerTokenStore)

// WithTokenClock overrides the clock used for expiry checks
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *BadgerTokenStore) {
		s.now = now
	}
}

// OpenBadgerTokenStore opens a token store. An empty dir keeps everything in
// memory; tokens then do not survive a restart.
func OpenBadgerTokenStore(dir string, opts ...TokenStoreOption) (*BadgerTokenStore, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	s := &BadgerTokenStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func tokenKey(token string) []byte {
	return []byte(tokenPrefix + token)
}

// Put stores payload under token until payload.ExpiresAt
func (s *BadgerTokenStore) Put(ctx context.Context, token string, payload TokenPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ttl := payload.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("token expiry %s is not in the future", payload.ExpiresAt.Format(time.RFC3339))
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode token payload: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(tokenKey(token), value).WithTTL(ttl))
	})
}

// Get resolves a token
func (s *BadgerTokenStore) Get(ctx context.Context, token string) (*TokenPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var payload *TokenPayload
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(token))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var p TokenPayload
			if err := json.Unmarshal(val, &p); err != nil {
				return fmt.Errorf("failed to decode token payload: %w", err)
			}
			payload = &p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if payload == nil || !s.now().Before(payload.ExpiresAt) {
		return nil, nil
	}
	return payload, nil
}

// Delete revokes a token. Deleting an unknown token is not an error.
func (s *BadgerTokenStore) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tokenKey(token))
	})
}

// Close releases the underlying badger database
func (s *BadgerTokenStore) Close() error {
	return s.db.Close()
}

// NewToken returns a random alphanumeric token of TokenLength characters
func NewToken() (string, error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	// 256 is not a multiple of 62; rejecting bytes >= 248 keeps the
	// distribution uniform.
	out := make([]byte, 0, TokenLength)
	for len(out) < TokenLength {
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
		if len(out) < TokenLength {
			if _, err := rand.Read(buf); err != nil {
				return "", fmt.Errorf("failed to generate token: %w", err)
			}
		}
	}
	return string(out), nil
}
