// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// actorKey is the context key for storing the authenticated actor.
const actorKey ContextKey = "actor"

// Actor is the authenticated account a request acts as. Its ID is written
// into transition logs as changed_by.
type Actor struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Email     string
}

// TokenValidator is an interface for validating bearer tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (ActorClaims, error)
}

// ActorClaims is the part of a validated token the middleware needs.
type ActorClaims interface {
	Actor() Actor
}

// AuthMiddleware creates middleware that validates bearer tokens and puts
// the actor into the request context. Failures answer 401 with a JSON body.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing or malformed bearer token")
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			actor := claims.Actor()
			if actor.ID == uuid.Nil {
				unauthorized(w, "token carries no actor")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// bearerToken extracts the token of a case-insensitive "Bearer" header
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="staffing-core"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":     "unauthorized",
		"message":   message,
		"retryable": false,
		"applied":   false,
	})
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor extracts the authenticated actor from the request context.
func GetActor(r *http.Request) (Actor, error) {
	actor, ok := r.Context().Value(actorKey).(Actor)
	if !ok || actor.ID == uuid.Nil {
		return Actor{}, fmt.Errorf("actor not found in request context")
	}
	return actor, nil
}
