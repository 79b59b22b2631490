//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

func TestLoginRequest_Validation(t *testing.T) {
	tests := []struct {
		name      string
		request   LoginRequest
		wantField string
	}{
		{"valid request", LoginRequest{Email: "rita@example.com", Password: "secret"}, ""},
		{"missing email", LoginRequest{Password: "secret"}, "email"},
		{"invalid email", LoginRequest{Email: "not-an-email", Password: "secret"}, "email"},
		{"missing password", LoginRequest{Email: "rita@example.com"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *pipelineerr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestLoginResponse_Serialization(t *testing.T) {
	candidate := uuid.New()
	resp := LoginResponse{
		Account: &Account{
			ID:                uuid.New(),
			Email:             "dana@example.com",
			FirstName:         "Dana",
			LinkedCandidateID: &candidate,
			IsActive:          true,
			CreatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Token:     "header.payload.signature",
		ExpiresAt: time.Date(2026, 1, 3, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "header.payload.signature", decoded["token"])
	account := decoded["account"].(map[string]any)
	assert.Equal(t, candidate.String(), account["linked_candidate_id"])
	assert.Equal(t, true, account["is_active"])
	assert.NotContains(t, account, "password_hash")
}
