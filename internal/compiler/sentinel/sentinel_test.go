package sentinel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/errors"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNil  bool
		kind     errors.ErrorKind
		validate func(t *testing.T, ce *errors.CompilerError)
	}{
		{
			name:    "regular artifact",
			input:   `{"name": "plan", "phases": []}`,
			wantNil: true,
		},
		{
			name:    "array root",
			input:   `[{"error": "missing_information"}]`,
			wantNil: true,
		},
		{
			name:  "missing information",
			input: `{"error": "missing_information", "details": "Domain X undefined"}`,
			kind:  errors.KindMissingInformation,
			validate: func(t *testing.T, ce *errors.CompilerError) {
				assert.Equal(t, "Domain X undefined", ce.Message)
				assert.Equal(t, []string{"Domain X undefined"}, ce.MissingItems)
				assert.False(t, ce.Recoverable)
				assert.Equal(t, errors.ActionHumanInputRequired, errors.Classify(ce))
			},
		},
		{
			name:  "missing information without details",
			input: `{"error": "missing_information"}`,
			kind:  errors.KindMissingInformation,
			validate: func(t *testing.T, ce *errors.CompilerError) {
				assert.Empty(t, ce.MissingItems)
			},
		},
		{
			name:  "invalid request",
			input: `{"error": "invalid_request", "details": "Scope contradicts constraints"}`,
			kind:  errors.KindInvalidRequest,
			validate: func(t *testing.T, ce *errors.CompilerError) {
				assert.Equal(t, "Scope contradicts constraints", ce.InvalidReason)
				assert.Equal(t, errors.ActionFixAndRetry, errors.Classify(ce))
			},
		},
		{
			name:  "unrecognized kind",
			input: `{"error": "refused", "details": "policy"}`,
			kind:  errors.KindUnknownSentinel,
			validate: func(t *testing.T, ce *errors.CompilerError) {
				assert.Equal(t, "refused", ce.SentinelKind)
				assert.False(t, ce.Recoverable)
				assert.Equal(t, errors.ActionAbort, errors.Classify(ce))
			},
		},
		{
			name:  "non-string error value",
			input: `{"error": 42}`,
			kind:  errors.KindUnknownSentinel,
			validate: func(t *testing.T, ce *errors.CompilerError) {
				assert.Equal(t, "42", ce.SentinelKind)
			},
		},
		{
			name:  "error key alongside artifact fields",
			input: `{"name": "plan", "error": "missing_information", "details": "no budget"}`,
			kind:  errors.KindMissingInformation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := decode(t, tt.input)
			ce := Parse(v)
			assert.Equal(t, !tt.wantNil, IsSentinel(v))
			if tt.wantNil {
				assert.Nil(t, ce)
				return
			}
			require.NotNil(t, ce)
			assert.Equal(t, tt.kind, ce.Kind)
			if tt.validate != nil {
				tt.validate(t, ce)
			}
		})
	}
}
