package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	actor Actor
}

func (c *testClaims) Actor() Actor {
	return c.actor
}

// testTokenValidator is a test implementation of TokenValidator.
type testTokenValidator struct {
	valid map[string]Actor
}

func (v *testTokenValidator) ValidateToken(tokenString string) (ActorClaims, error) {
	actor, ok := v.valid[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return &testClaims{actor: actor}, nil
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	actor := Actor{ID: uuid.New(), CompanyID: uuid.New(), Email: "rita@example.com"}
	validator := &testTokenValidator{valid: map[string]Actor{"good-token": actor}}

	var got Actor
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		got, err = GetActor(r)
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{"Bearer good-token", "bearer good-token", "BEARER   good-token"} {
		req := httptest.NewRequest(http.MethodPost, "/applications/x/advance", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code, header)
		assert.Equal(t, actor, got)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	validator := &testTokenValidator{valid: map[string]Actor{
		"good-token":  {ID: uuid.New()},
		"nobody-here": {},
	}}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good-token"},
		{"no token", "Bearer"},
		{"extra parts", "Bearer good-token extra"},
		{"unknown token", "Bearer bad-token"},
		{"token without actor", "Bearer nobody-here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/applications/x/stages/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
			assert.Equal(t, false, body["applied"])
		})
	}
}

func TestGetActor_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetActor(req)
	assert.Error(t, err)

	actor := Actor{ID: uuid.New()}
	req = req.WithContext(WithActor(req.Context(), actor))
	got, err := GetActor(req)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, got.ID)
}
