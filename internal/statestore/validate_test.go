package statestore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateBytes validates the structural checks on raw file contents.
func TestValidateBytes(t *testing.T) {
	valid, err := Marshal(NewSessionState("validate bytes"))
	require.NoError(t, err)

	mutate := func(changes map[string]any, remove ...string) []byte {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(valid, &doc))
		for k, v := range changes {
			doc[k] = v
		}
		for _, k := range remove {
			delete(doc, k)
		}
		out, err := json.Marshal(doc)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name      string
		data      []byte
		wantField string
		wantErr   bool
	}{
		{
			name: "valid document",
			data: valid,
		},
		{
			name:    "truncated json",
			data:    valid[:len(valid)/2],
			wantErr: true,
		},
		{
			name:    "json array instead of object",
			data:    []byte(`[1,2,3]`),
			wantErr: true,
		},
		{
			name:      "missing status",
			data:      mutate(nil, "status"),
			wantField: "status",
			wantErr:   true,
		},
		{
			name:      "status wrong type",
			data:      mutate(map[string]any{"status": 7}),
			wantField: "status",
			wantErr:   true,
		},
		{
			name:      "unknown status value",
			data:      mutate(map[string]any{"status": "RUNNING"}),
			wantField: "status",
			wantErr:   true,
		},
		{
			name:      "empty session id",
			data:      mutate(map[string]any{"session_id": ""}),
			wantField: "session_id",
			wantErr:   true,
		},
		{
			name:      "fractional repair attempts",
			data:      mutate(map[string]any{"repair_attempts": 1.5}),
			wantField: "repair_attempts",
			wantErr:   true,
		},
		{
			name:      "negative repair attempts",
			data:      mutate(map[string]any{"repair_attempts": -1}),
			wantField: "repair_attempts",
			wantErr:   true,
		},
		{
			name:      "repair attempts as string",
			data:      mutate(map[string]any{"repair_attempts": "0"}),
			wantField: "repair_attempts",
			wantErr:   true,
		},
		{
			name:      "architectural_design missing",
			data:      mutate(nil, "architectural_design"),
			wantField: "architectural_design",
			wantErr:   true,
		},
		{
			name:      "architectural_design not an object",
			data:      mutate(map[string]any{"architectural_design": []any{}}),
			wantField: "architectural_design",
			wantErr:   true,
		},
		{
			name:      "unknown complexity",
			data:      mutate(map[string]any{"complexity": "medium"}),
			wantField: "complexity",
			wantErr:   true,
		},
		{
			name: "empty complexity and verdict are legal",
			data: mutate(map[string]any{"complexity": "", "review_verdict": ""}),
		},
		{
			name:      "unknown verdict",
			data:      mutate(map[string]any{"review_verdict": "APPROVED"}),
			wantField: "review_verdict",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBytes(tt.data)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, vErr.Field)
			}
		})
	}
}

// TestValidateState validates the in-memory document checks.
func TestValidateState(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SessionState)
		wantErr bool
	}{
		{
			name:   "fresh session is valid",
			mutate: func(s *SessionState) {},
		},
		{
			name: "fully populated session is valid",
			mutate: func(s *SessionState) {
				s.Complexity = ComplexitySimple
				s.ReviewVerdict = VerdictNeedsRepair
				s.RepairAttempts = 2
				s.ArchitecturalDesign["review"] = json.RawMessage(`{"ok":true}`)
			},
		},
		{
			name:    "empty session id",
			mutate:  func(s *SessionState) { s.SessionID = "" },
			wantErr: true,
		},
		{
			name:    "unknown status",
			mutate:  func(s *SessionState) { s.Status = "paused" },
			wantErr: true,
		},
		{
			name:    "invalid namespace payload",
			mutate:  func(s *SessionState) { s.ArchitecturalDesign["x"] = json.RawMessage(`{"broken":`) },
			wantErr: true,
		},
		{
			name:    "negative schema version",
			mutate:  func(s *SessionState) { s.SchemaVersion = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewSessionState("validate state")
			tt.mutate(state)
			err := ValidateState(state)
			if tt.wantErr {
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("nil document", func(t *testing.T) {
		var vErr *ValidationError
		assert.ErrorAs(t, ValidateState(nil), &vErr)
	})
}

// TestMarshalValidatesRoundTrip validates that Marshal output always passes
// ValidateBytes, so every document written by this package can be read back.
func TestMarshalValidatesRoundTrip(t *testing.T) {
	state := NewSessionState("round trip")
	state.Complexity = ComplexityComplex
	state.ReviewVerdict = VerdictApproved

	data, err := Marshal(state)
	require.NoError(t, err)
	require.NoError(t, ValidateBytes(data))

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, state.SessionID, got.SessionID)
	assert.Equal(t, state.Complexity, got.Complexity)
	assert.Equal(t, state.ReviewVerdict, got.ReviewVerdict)
}
